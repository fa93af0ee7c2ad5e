package syncworker

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/org/mdmagent/internal/mdmclient"
	"github.com/org/mdmagent/pkg/models"
)

func twoCalls() []models.CallLogRecord {
	return []models.CallLogRecord{
		{PhoneNumber: "+200", CallType: models.CallOutgoing, Duration: 5, CallTimestamp: 200},
		{PhoneNumber: "+100", CallType: models.CallIncoming, Duration: 9, CallTimestamp: 100},
	}
}

func newCallLogWorker(t *testing.T, pair mdmclient.Pair, backend *memBackend, caps ...string) *Worker[models.CallLogRecord] {
	t.Helper()
	if caps == nil {
		caps = []string{CapabilityReadCallLog}
	}
	task := NewCallLogTask(NewCapabilitySet(caps...), backend)
	return NewWorker(task, pair, backend, nil, zerolog.Nop())
}

func TestWorkerRoundTrip(t *testing.T) {
	srv := newFakeServer(t, "true")
	backend := newMemBackend(twoCalls()...)
	backend.marks[CallLogJob] = 50
	w := newCallLogWorker(t, mdmclient.Pair{Primary: srv.client(t)}, backend)
	ctx := context.Background()

	srv.setUploadCode(http.StatusInternalServerError)
	require.Equal(t, Retry, w.Run(ctx))
	require.EqualValues(t, 50, backend.mark(CallLogJob), "failed upload must not move the watermark")

	srv.setUploadCode(http.StatusOK)
	require.Equal(t, Success, w.Run(ctx))
	require.EqualValues(t, 200, backend.mark(CallLogJob))

	uploads := srv.Uploads()
	require.Len(t, uploads, 2)
	for _, body := range uploads {
		got := decodeCalls(t, body)
		require.Len(t, got, 2)
		require.EqualValues(t, 100, got[0].CallTimestamp)
		require.EqualValues(t, 200, got[1].CallTimestamp)
	}

	// Nothing new: no upload, watermark untouched.
	require.Equal(t, Success, w.Run(ctx))
	require.Len(t, srv.Uploads(), 2)
	require.Equal(t, 1, backend.advances)
}

func TestWorkerMissingPermission(t *testing.T) {
	srv := newFakeServer(t, "true")
	backend := newMemBackend(twoCalls()...)
	w := newCallLogWorker(t, mdmclient.Pair{Primary: srv.client(t)}, backend, "read_contacts")

	require.Equal(t, Failure, w.Run(context.Background()))
	require.Zero(t, srv.GateCalls())
}

func TestWorkerGate(t *testing.T) {
	cases := []struct {
		name string
		gate string
		want Result
		sent bool
	}{
		{"bare true", "TRUE", Success, true},
		{"bare false", "false", Success, false},
		{"envelope bool", `{"status":"OK","data":true}`, Success, true},
		{"envelope string", `{"status":"ok","data":"true"}`, Success, true},
		{"envelope error", `{"status":"ERROR","data":true}`, Success, false},
		{"garbage", "<html>", Success, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newFakeServer(t, tc.gate)
			backend := newMemBackend(twoCalls()...)
			w := newCallLogWorker(t, mdmclient.Pair{Primary: srv.client(t)}, backend)

			require.Equal(t, tc.want, w.Run(context.Background()))
			require.Equal(t, tc.sent, len(srv.Uploads()) == 1)
		})
	}
}

func TestWorkerGateFailover(t *testing.T) {
	secondary := newFakeServer(t, "true")
	primary := newFakeServer(t, "")
	backend := newMemBackend(twoCalls()...)
	w := newCallLogWorker(t, mdmclient.Pair{Primary: primary.client(t), Secondary: secondary.client(t)}, backend)

	require.Equal(t, Success, w.Run(context.Background()))
	require.Equal(t, 1, primary.GateCalls())
	require.Equal(t, 1, secondary.GateCalls())
	// Upload still goes to the primary only.
	require.Len(t, primary.Uploads(), 1)
	require.Empty(t, secondary.Uploads())
	require.EqualValues(t, 200, backend.mark(CallLogJob))
}

func TestWorkerBothGatesDown(t *testing.T) {
	backend := newMemBackend(twoCalls()...)
	w := newCallLogWorker(t, mdmclient.Pair{Primary: deadServer(t), Secondary: deadServer(t)}, backend)

	require.Equal(t, Retry, w.Run(context.Background()))
	require.Zero(t, backend.mark(CallLogJob))
}

func TestWorkerSourceErrors(t *testing.T) {
	t.Run("watermark read", func(t *testing.T) {
		srv := newFakeServer(t, "true")
		backend := newMemBackend(twoCalls()...)
		backend.readErr = errBoom
		w := newCallLogWorker(t, mdmclient.Pair{Primary: srv.client(t)}, backend)
		require.Equal(t, Failure, w.Run(context.Background()))
	})

	t.Run("record source", func(t *testing.T) {
		srv := newFakeServer(t, "true")
		backend := newMemBackend(twoCalls()...)
		backend.sourceErr = errBoom
		w := newCallLogWorker(t, mdmclient.Pair{Primary: srv.client(t)}, backend)
		require.Equal(t, Failure, w.Run(context.Background()))
		require.Empty(t, srv.Uploads())
	})

	t.Run("commit", func(t *testing.T) {
		srv := newFakeServer(t, "true")
		backend := newMemBackend(twoCalls()...)
		backend.commitErr = errBoom
		w := newCallLogWorker(t, mdmclient.Pair{Primary: srv.client(t)}, backend)
		require.Equal(t, Retry, w.Run(context.Background()))
		require.Len(t, srv.Uploads(), 1)
	})
}

func TestGenericWorkerWithoutGate(t *testing.T) {
	srv := newFakeServer(t, "")
	backend := newMemBackend()
	clock := quartz.NewMock(t)
	var got []int64
	task := Task[int64]{
		Name: "numbers",
		Source: SourceFunc[int64](func(_ context.Context, since int64) ([]int64, error) {
			clock.Advance(3 * time.Second)
			var out []int64
			for _, v := range []int64{10, 20, 30} {
				if v > since {
					out = append(out, v)
				}
			}
			return out, nil
		}),
		Timestamp: func(v int64) int64 { return v },
		Upload: func(_ context.Context, _ *mdmclient.Client, batch []int64) error {
			got = append(got, batch...)
			return nil
		},
	}
	w := NewWorker(task, mdmclient.Pair{Primary: srv.client(t)}, backend, clock, zerolog.Nop())

	require.Equal(t, "numbers", w.Name())
	require.Equal(t, Success, w.Run(context.Background()))
	require.Equal(t, []int64{10, 20, 30}, got)
	require.EqualValues(t, 30, backend.mark("numbers"))
	require.Zero(t, srv.GateCalls())

	require.Equal(t, 3.0, testutil.ToFloat64(uploadedRecords.WithLabelValues("numbers")))
	require.Equal(t, 30.0, testutil.ToFloat64(watermarkGauge.WithLabelValues("numbers")))
	require.Equal(t, 1.0, testutil.ToFloat64(runsTotal.WithLabelValues("numbers", Success.String())))

	// Run duration is measured on the worker clock.
	var m dto.Metric
	require.NoError(t, runDuration.WithLabelValues("numbers").(prometheus.Histogram).Write(&m))
	require.EqualValues(t, 1, m.GetHistogram().GetSampleCount())
	require.Equal(t, 3.0, m.GetHistogram().GetSampleSum())
}

func TestParseEnabled(t *testing.T) {
	cases := map[string]bool{
		"true":                           true,
		" True\n":                        true,
		"false":                          false,
		"":                               false,
		"null":                           false,
		"1":                              false,
		`"true"`:                         false,
		`{"status":"OK","data":true}`:    true,
		`{"status":"OK","data":"TRUE"}`:  true,
		`{"status":"OK","data":false}`:   false,
		`{"status":"OK","data":"no"}`:    false,
		`{"status":"OK"}`:                false,
		`{"status":"ERROR","data":true}`: false,
		`{"data":true}`:                  false,
		`[true]`:                         false,
		`{"status":"OK","data":true`:     false,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseEnabled([]byte(in)), "%q", in)
	}
}

package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/petition-hub/petition-hub/internal/application/apptest"
	"github.com/petition-hub/petition-hub/internal/domain/job"
	jobmocks "github.com/petition-hub/petition-hub/internal/domain/job/mocks"
	"github.com/petition-hub/petition-hub/internal/infrastructure/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func newWorker(t *testing.T) (*Worker, *jobmocks.MockQueue) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	queue := jobmocks.NewMockQueue(ctrl)
	w := NewWorker(queue, Options{Lease: time.Minute, Backoff: time.Second}, metrics.New(prometheus.NewRegistry()), zerolog.Nop())
	w.now = apptest.Clock(now)
	return w, queue
}

func newJob(t *testing.T, name string, attempts int) *job.Job {
	j, err := job.New(name, job.SignatureValidatedArgs{SignatureID: 1, PetitionID: 2}, now)
	require.NoError(t, err)
	j.Attempts = attempts
	return j
}

// expectClaims queues one claim per job followed by an empty claim.
func expectClaims(ctx context.Context, queue *jobmocks.MockQueue, jobs ...*job.Job) {
	calls := make([]any, 0, len(jobs)+1)
	for _, j := range jobs {
		calls = append(calls, queue.EXPECT().Claim(ctx, 1, time.Minute).Return([]*job.Job{j}, nil))
	}
	calls = append(calls, queue.EXPECT().Claim(ctx, 1, time.Minute).Return(nil, nil))
	gomock.InOrder(calls...)
}

func TestWorker_ProcessPending(t *testing.T) {
	ctx := context.Background()

	t.Run("completes handled jobs", func(t *testing.T) {
		w, queue := newWorker(t)
		j := newJob(t, job.NameSignatureValidated, 1)
		var seen int64
		w.Register(job.NameSignatureValidated, func(_ context.Context, j *job.Job) error {
			var args job.SignatureValidatedArgs
			require.NoError(t, j.Decode(&args))
			seen = args.SignatureID
			return nil
		})
		expectClaims(ctx, queue, j)
		queue.EXPECT().Complete(ctx, j.JobID).Return(nil)

		n, err := w.ProcessPending(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, int64(1), seen)
	})

	t.Run("failure is retried with backoff", func(t *testing.T) {
		w, queue := newWorker(t)
		j := newJob(t, job.NameSignatureValidated, 3)
		w.Register(job.NameSignatureValidated, func(context.Context, *job.Job) error {
			return errors.New("deadlock detected")
		})
		expectClaims(ctx, queue, j)
		queue.EXPECT().Fail(ctx, j.JobID, "deadlock detected", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ any, _ string, retryAt *time.Time) error {
				require.NotNil(t, retryAt)
				assert.Equal(t, now.Add(4*time.Second), *retryAt)
				return nil
			})

		n, err := w.ProcessPending(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("exhausted job is dead", func(t *testing.T) {
		w, queue := newWorker(t)
		j := newJob(t, job.NamePetitionNotify, job.DefaultMaxAttempts)
		w.Register(job.NamePetitionNotify, func(context.Context, *job.Job) error {
			return errors.New("smtp down")
		})
		expectClaims(ctx, queue, j)
		queue.EXPECT().Fail(ctx, j.JobID, "smtp down", (*time.Time)(nil)).Return(nil)

		_, err := w.ProcessPending(ctx, 10)
		require.NoError(t, err)
	})

	t.Run("unknown job", func(t *testing.T) {
		w, queue := newWorker(t)
		j := newJob(t, "petition.unknown", 1)
		expectClaims(ctx, queue, j)
		queue.EXPECT().Fail(ctx, j.JobID, gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ any, msg string, _ *time.Time) error {
				assert.Contains(t, msg, job.ErrUnknownJob.Error())
				return nil
			})

		_, err := w.ProcessPending(ctx, 10)
		require.NoError(t, err)
	})

	t.Run("panicking handler fails the job", func(t *testing.T) {
		w, queue := newWorker(t)
		j := newJob(t, job.NameInvalidationRun, 1)
		w.Register(job.NameInvalidationRun, func(context.Context, *job.Job) error {
			panic("nil map")
		})
		expectClaims(ctx, queue, j)
		queue.EXPECT().Fail(ctx, j.JobID, gomock.Any(), gomock.Any()).Return(nil)

		_, err := w.ProcessPending(ctx, 10)
		require.NoError(t, err)
	})

	t.Run("claims one job at a time up to the limit", func(t *testing.T) {
		w, queue := newWorker(t)
		first := newJob(t, job.NameSignatureValidated, 1)
		second := newJob(t, job.NameSignatureValidated, 1)
		var order []string
		w.Register(job.NameSignatureValidated, func(_ context.Context, j *job.Job) error {
			order = append(order, j.JobID.String())
			return nil
		})
		gomock.InOrder(
			queue.EXPECT().Claim(ctx, 1, time.Minute).Return([]*job.Job{first}, nil),
			queue.EXPECT().Complete(ctx, first.JobID).Return(nil),
			queue.EXPECT().Claim(ctx, 1, time.Minute).Return([]*job.Job{second}, nil),
			queue.EXPECT().Complete(ctx, second.JobID).Return(nil),
		)

		n, err := w.ProcessPending(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []string{first.JobID.String(), second.JobID.String()}, order)
	})

	t.Run("claim failure", func(t *testing.T) {
		w, queue := newWorker(t)
		queue.EXPECT().Claim(ctx, 1, time.Minute).Return(nil, errors.New("connection refused"))

		_, err := w.ProcessPending(ctx, 10)
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestWorker_Run(t *testing.T) {
	w, queue := newWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	polled := make(chan struct{}, 1)
	queue.EXPECT().Claim(gomock.Any(), 1, time.Minute).DoAndReturn(func(context.Context, int, time.Duration) ([]*job.Job, error) {
		select {
		case polled <- struct{}{}:
		default:
		}
		return nil, nil
	}).MinTimes(1)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 10*time.Millisecond, 5) }()

	<-polled
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_RenewsLeaseWhileHandlerRuns(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	queue := jobmocks.NewMockQueue(ctrl)
	lease := 30 * time.Millisecond
	w := NewWorker(queue, Options{Lease: lease, Backoff: time.Second}, nil, zerolog.Nop())

	j := newJob(t, job.NameInvalidationRun, 1)
	renewed := make(chan struct{})
	var once sync.Once
	queue.EXPECT().Touch(gomock.Any(), j.JobID, lease).DoAndReturn(func(context.Context, uuid.UUID, time.Duration) error {
		once.Do(func() { close(renewed) })
		return nil
	}).MinTimes(1)
	w.Register(job.NameInvalidationRun, func(context.Context, *job.Job) error {
		select {
		case <-renewed:
			return nil
		case <-time.After(time.Second):
			return errors.New("lease was not renewed")
		}
	})
	gomock.InOrder(
		queue.EXPECT().Claim(ctx, 1, lease).Return([]*job.Job{j}, nil),
		queue.EXPECT().Complete(ctx, j.JobID).Return(nil),
	)

	n, err := w.ProcessPending(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

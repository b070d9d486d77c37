package queue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"tcad/internal/appraisal"
	"tcad/internal/model"
	"tcad/internal/store"
)

// fakeFetcher serves scripted results keyed by the token used.
type fakeFetcher struct {
	calls   []string // tokens seen, in order
	results map[string]*appraisal.Result
	errs    map[string]error
}

func (f *fakeFetcher) Fetch(ctx context.Context, token, term string, year int) (*appraisal.Result, error) {
	f.calls = append(f.calls, token)
	if err, ok := f.errs[token]; ok {
		return nil, err
	}
	if res, ok := f.results[token]; ok {
		return res, nil
	}
	return &appraisal.Result{Records: []appraisal.RawRecord{}}, nil
}

type fakeTokens struct {
	current    string
	refreshTo  string
	refreshErr error
	refreshes  int
}

func (f *fakeTokens) Current() (string, bool) {
	return f.current, f.current != ""
}

func (f *fakeTokens) RefreshNow(ctx context.Context) (string, error) {
	f.refreshes++
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	f.current = f.refreshTo
	return f.refreshTo, nil
}

// fakeJobStore records every patch so tests can assert the milestone
// sequence.
type fakeJobStore struct {
	patches   []store.JobPatch
	upserted  [][]model.Property
	upsertErr error
}

func (f *fakeJobStore) UpdateScrapeJob(ctx context.Context, id uuid.UUID, patch store.JobPatch) error {
	f.patches = append(f.patches, patch)
	return nil
}

func (f *fakeJobStore) UpsertProperties(ctx context.Context, props []model.Property) (store.UpsertStats, error) {
	f.upserted = append(f.upserted, props)
	if f.upsertErr != nil {
		return store.UpsertStats{}, f.upsertErr
	}
	return store.UpsertStats{Inserted: len(props)}, nil
}

func (f *fakeJobStore) lastStatus() model.JobStatus {
	for i := len(f.patches) - 1; i >= 0; i-- {
		if f.patches[i].Status != nil {
			return *f.patches[i].Status
		}
	}
	return ""
}

func scrapeTask(t *testing.T, jobID uuid.UUID, term string) *asynq.Task {
	t.Helper()
	return asynq.NewTask(TypeScrape, []byte(`{"jobId": "`+jobID.String()+`", "searchTerm": "`+term+`", "year": 2026}`))
}

func resultWithRecords(n int) *appraisal.Result {
	records := make([]appraisal.RawRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, appraisal.RawRecord{PID: appraisal.FlexString(uuid.NewString())})
	}
	return &appraisal.Result{TotalCount: n, Records: records, PageSizeUsed: 1000}
}

func TestProcessTaskHappyPath(t *testing.T) {
	jobID := uuid.New()
	fetcher := &fakeFetcher{results: map[string]*appraisal.Result{"tok": resultWithRecords(3)}}
	tokens := &fakeTokens{current: "tok"}
	st := &fakeJobStore{}

	w := NewWorker(fetcher, tokens, st, 2026, nil)
	if err := w.ProcessTask(context.Background(), scrapeTask(t, jobID, "Smith")); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}

	if st.lastStatus() != model.StatusCompleted {
		t.Fatalf("expected completed, got %s", st.lastStatus())
	}
	if len(st.upserted) != 1 || len(st.upserted[0]) != 3 {
		t.Fatalf("expected one upsert of 3 records, got %+v", st.upserted)
	}

	// The final patch carries progress 100 and the result count.
	final := st.patches[len(st.patches)-1]
	if final.Progress == nil || *final.Progress != 100 {
		t.Fatalf("expected final progress 100, got %+v", final)
	}
	if final.ResultCount == nil || *final.ResultCount != 3 {
		t.Fatalf("expected resultCount 3, got %+v", final)
	}
	if final.CompletedAt == nil {
		t.Fatalf("expected completedAt set")
	}

	// Milestones move monotonically through 10/30/70/100.
	var progresses []int
	for _, p := range st.patches {
		if p.Progress != nil {
			progresses = append(progresses, *p.Progress)
		}
	}
	want := []int{10, 30, 70, 100}
	if len(progresses) != len(want) {
		t.Fatalf("expected milestones %v, got %v", want, progresses)
	}
	for i := range want {
		if progresses[i] != want[i] {
			t.Fatalf("expected milestones %v, got %v", want, progresses)
		}
	}
}

func TestProcessTaskRefreshesExpiredTokenInline(t *testing.T) {
	jobID := uuid.New()
	fetcher := &fakeFetcher{
		errs:    map[string]error{"stale": appraisal.NewError(appraisal.KindTokenExpired, "401")},
		results: map[string]*appraisal.Result{"fresh": resultWithRecords(2)},
	}
	tokens := &fakeTokens{current: "stale", refreshTo: "fresh"}
	st := &fakeJobStore{}

	w := NewWorker(fetcher, tokens, st, 2026, nil)
	if err := w.ProcessTask(context.Background(), scrapeTask(t, jobID, "Smith")); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}

	if tokens.refreshes != 1 {
		t.Fatalf("expected exactly one inline refresh, got %d", tokens.refreshes)
	}
	if len(fetcher.calls) != 2 || fetcher.calls[0] != "stale" || fetcher.calls[1] != "fresh" {
		t.Fatalf("expected stale then fresh fetch, got %v", fetcher.calls)
	}
	if st.lastStatus() != model.StatusCompleted {
		t.Fatalf("expected completed after inline retry, got %s", st.lastStatus())
	}
}

func TestProcessTaskNoTokenFails(t *testing.T) {
	jobID := uuid.New()
	tokens := &fakeTokens{refreshErr: errors.New("portal down")}
	st := &fakeJobStore{}

	w := NewWorker(&fakeFetcher{}, tokens, st, 2026, nil)
	err := w.ProcessTask(context.Background(), scrapeTask(t, jobID, "Smith"))
	if err == nil {
		t.Fatalf("expected error when no token can be acquired")
	}
	if appraisal.KindOf(err) != appraisal.KindNoToken {
		t.Fatalf("expected NO_TOKEN, got %v", err)
	}

	// Outside an asynq server there are no retries left, so the job is
	// marked failed with the classified message.
	if st.lastStatus() != model.StatusFailed {
		t.Fatalf("expected failed, got %s", st.lastStatus())
	}
	var failMsg string
	for _, p := range st.patches {
		if p.Error != nil && *p.Error != "" {
			failMsg = *p.Error
		}
	}
	if !strings.Contains(failMsg, "NO_TOKEN") {
		t.Fatalf("job error should carry the classified kind, got %q", failMsg)
	}
}

func TestProcessTaskStoreErrorIsClassified(t *testing.T) {
	jobID := uuid.New()
	fetcher := &fakeFetcher{results: map[string]*appraisal.Result{"tok": resultWithRecords(1)}}
	st := &fakeJobStore{upsertErr: errors.New("deadlock")}

	w := NewWorker(fetcher, &fakeTokens{current: "tok"}, st, 2026, nil)
	err := w.ProcessTask(context.Background(), scrapeTask(t, jobID, "Smith"))
	if appraisal.KindOf(err) != appraisal.KindStoreError {
		t.Fatalf("expected STORE_ERROR, got %v", err)
	}
}

func TestProcessTaskBadPayloadSkipsRetry(t *testing.T) {
	w := NewWorker(&fakeFetcher{}, &fakeTokens{current: "tok"}, &fakeJobStore{}, 2026, nil)

	err := w.ProcessTask(context.Background(), asynq.NewTask(TypeScrape, []byte("{not json")))
	if err == nil || !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for bad payload, got %v", err)
	}

	err = w.ProcessTask(context.Background(), asynq.NewTask(TypeScrape, []byte(`{"jobId": "nope", "searchTerm": "x"}`)))
	if err == nil || !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for bad job id, got %v", err)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	delay := RetryDelay(2 * time.Second)

	for n := 0; n < 4; n++ {
		base := 2 * time.Second << n
		lo := time.Duration(float64(base) * 0.75)
		hi := time.Duration(float64(base) * 1.25)
		for i := 0; i < 50; i++ {
			d := delay(n, errors.New("x"), nil)
			if d < lo || d > hi {
				t.Fatalf("delay(%d) = %v outside [%v, %v]", n, d, lo, hi)
			}
		}
	}
}

func TestQueueForPriority(t *testing.T) {
	cases := []struct {
		priority int
		want     string
	}{
		{1, QueueCritical},
		{3, QueueCritical},
		{4, QueueDefault},
		{7, QueueDefault},
		{8, QueueLow},
		{10, QueueLow},
	}
	for _, tc := range cases {
		if got := queueForPriority(tc.priority); got != tc.want {
			t.Fatalf("queueForPriority(%d) = %s, want %s", tc.priority, got, tc.want)
		}
	}
}

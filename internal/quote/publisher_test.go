package quote

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
)

type recordingSink struct {
	mu      sync.Mutex
	results []Result
}

func (s *recordingSink) OnQuote(result Result) {
	s.mu.Lock()
	s.results = append(s.results, result)
	s.mu.Unlock()
}

func (s *recordingSink) received() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

type fakeSource struct {
	mu      sync.Mutex
	batches [][]string
	err     error
	perCode map[string]error
}

func (f *fakeSource) FetchQuotes(ctx context.Context, codes []string) ([]Result, error) {
	f.mu.Lock()
	batch := make([]string, len(codes))
	copy(batch, codes)
	f.batches = append(f.batches, batch)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	results := make([]Result, 0, len(codes))
	for _, code := range codes {
		if codeErr, ok := f.perCode[code]; ok && codeErr != nil {
			results = append(results, Result{SecurityCode: code, Err: codeErr})
			continue
		}
		results = append(results, Result{
			SecurityCode: code,
			Quote:        &FiveLevelQuote{SecurityCode: code, CurrentPrice: 10},
		})
	}
	return results, nil
}

func (f *fakeSource) polledCodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var codes []string
	for _, batch := range f.batches {
		codes = append(codes, batch...)
	}
	sort.Strings(codes)
	return codes
}

func TestPublisher_FanOutToAllSinks(t *testing.T) {
	source := &fakeSource{}
	publisher := NewPublisher(source, 0, 50, nil)

	sinks := []*recordingSink{{}, {}, {}}
	for _, sink := range sinks {
		publisher.Subscribe("SH600000", sink)
	}

	publisher.PollOnce(context.Background())

	// 同一代码只占用一个拉取槽位。
	if codes := source.polledCodes(); len(codes) != 1 || codes[0] != "SH600000" {
		t.Fatalf("expected single polled code, got %v", codes)
	}

	for i, sink := range sinks {
		results := sink.received()
		if len(results) != 1 {
			t.Fatalf("sink %d expected 1 result, got %d", i, len(results))
		}
		if results[0].Quote == nil || results[0].Quote.SecurityCode != "SH600000" {
			t.Errorf("sink %d received unexpected result: %+v", i, results[0])
		}
	}

	// 所有订阅方拿到同一份行情快照。
	if sinks[0].received()[0].Quote != sinks[1].received()[0].Quote {
		t.Error("expected identical quote instance delivered to every sink")
	}
}

func TestPublisher_BatchSplitting(t *testing.T) {
	source := &fakeSource{}
	publisher := NewPublisher(source, 0, 2, nil)

	sink := &recordingSink{}
	for _, code := range []string{"SH600000", "SH600001", "SH600002", "SH600003", "SH600004"} {
		publisher.Subscribe(code, sink)
	}

	publisher.PollOnce(context.Background())

	source.mu.Lock()
	batches := source.batches
	source.mu.Unlock()

	if len(batches) != 3 {
		t.Fatalf("expected 3 batches for 5 codes with size 2, got %d", len(batches))
	}
	for _, batch := range batches {
		if len(batch) > 2 {
			t.Errorf("batch exceeds size limit: %v", batch)
		}
	}
	if len(sink.received()) != 5 {
		t.Errorf("expected 5 results, got %d", len(sink.received()))
	}
}

func TestPublisher_PerCodeErrorDelivered(t *testing.T) {
	codeErr := errors.New("行情缺失")
	source := &fakeSource{perCode: map[string]error{"SZ000001": codeErr}}
	publisher := NewPublisher(source, 0, 50, nil)

	sink := &recordingSink{}
	publisher.Subscribe("SZ000001", sink)

	publisher.PollOnce(context.Background())

	results := sink.received()
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !errors.Is(results[0].Err, codeErr) {
		t.Errorf("expected per-code error delivered, got %v", results[0].Err)
	}
	if results[0].Quote != nil {
		t.Error("expected no quote alongside error")
	}
}

func TestPublisher_AdapterFailureAbandonsTick(t *testing.T) {
	source := &fakeSource{err: errors.New("bridge down")}
	publisher := NewPublisher(source, 0, 50, nil)

	sink := &recordingSink{}
	publisher.Subscribe("SH600000", sink)

	publisher.PollOnce(context.Background())

	if len(sink.received()) != 0 {
		t.Errorf("expected no delivery on adapter failure, got %d", len(sink.received()))
	}

	// 下一轮照常进行。
	source.err = nil
	publisher.PollOnce(context.Background())
	if len(sink.received()) != 1 {
		t.Errorf("expected next tick to proceed, got %d results", len(sink.received()))
	}
}

func TestPublisher_UnsubscribeRemovesEmptyCode(t *testing.T) {
	source := &fakeSource{}
	publisher := NewPublisher(source, 0, 50, nil)

	sink := &recordingSink{}
	publisher.Subscribe("SH600000", sink)
	publisher.Unsubscribe("SH600000", sink)

	if codes := publisher.SubscribedCodes(); len(codes) != 0 {
		t.Fatalf("expected empty code set, got %v", codes)
	}

	publisher.PollOnce(context.Background())
	if len(source.batches) != 0 {
		t.Errorf("expected no poll for unsubscribed code, got %v", source.batches)
	}
}

func TestPublisher_UnsubscribedSinkNotDelivered(t *testing.T) {
	source := &fakeSource{}
	publisher := NewPublisher(source, 0, 50, nil)

	kept := &recordingSink{}
	dropped := &recordingSink{}
	publisher.Subscribe("SH600000", kept)
	publisher.Subscribe("SH600000", dropped)
	publisher.Unsubscribe("SH600000", dropped)

	publisher.PollOnce(context.Background())

	if len(kept.received()) != 1 {
		t.Errorf("expected kept sink to receive result, got %d", len(kept.received()))
	}
	if len(dropped.received()) != 0 {
		t.Errorf("expected dropped sink to receive nothing, got %d", len(dropped.received()))
	}
}

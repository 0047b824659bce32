package pipeline_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/reactive/errors"
	"github.com/kbukum/reactive/pipeline"
	"github.com/kbukum/reactive/scheduler"
)

type sliceIter[T any] struct {
	items  []T
	index  int
	closed atomic.Bool
}

func (it *sliceIter[T]) Next(_ context.Context) (T, bool, error) {
	if it.index >= len(it.items) {
		var zero T
		return zero, false, nil
	}
	val := it.items[it.index]
	it.index++
	return val, true, nil
}

func (it *sliceIter[T]) Close() error {
	it.closed.Store(true)
	return nil
}

type failingIter struct {
	after int
	n     int
}

func (it *failingIter) Next(_ context.Context) (int, bool, error) {
	if it.n >= it.after {
		return 0, false, stderrors.New("read failed")
	}
	it.n++
	return it.n, true, nil
}

func (it *failingIter) Close() error { return nil }

func TestFromSlice_Collect(t *testing.T) {
	p := pipeline.FromSlice([]int{1, 2, 3})
	got, err := pipeline.Collect(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{1, 2, 3}
	if !intSliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFromSlice_Empty(t *testing.T) {
	p := pipeline.FromSlice([]int{})
	got, err := pipeline.Collect(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
}

func TestFromSlice_Cold(t *testing.T) {
	p := pipeline.Just("a", "b")
	for i := 0; i < 2; i++ {
		got, err := pipeline.Collect(context.Background(), p)
		if err != nil {
			t.Fatal(err)
		}
		if !strSliceEqual(got, []string{"a", "b"}) {
			t.Errorf("subscription %d: got %v", i, got)
		}
	}
}

func TestFromIterator(t *testing.T) {
	iter := &sliceIter[string]{items: []string{"a", "b"}}
	p := pipeline.FromIterator[string](iter)
	got, err := pipeline.Collect(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v, want [a b]", got)
	}
	if !iter.closed.Load() {
		t.Error("iterator should be closed on completion")
	}
}

func TestFromFunc_UpstreamError(t *testing.T) {
	p := pipeline.FromFunc(func(_ context.Context) pipeline.Iterator[int] {
		return &failingIter{after: 2}
	})
	got, err := pipeline.Collect(context.Background(), p)
	if !errors.HasCode(err, errors.ErrCodeUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if !intSliceEqual(got, []int{1, 2}) {
		t.Errorf("expected values before error, got %v", got)
	}
}

func TestFromSeq(t *testing.T) {
	p := pipeline.FromSeq(slices.Values([]string{"x", "y", "z"}))
	got, err := pipeline.Collect(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if !strSliceEqual(got, []string{"x", "y", "z"}) {
		t.Errorf("got %v", got)
	}
}

func TestFromCallable(t *testing.T) {
	calls := 0
	p := pipeline.FromCallable(func(_ context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if calls != 0 {
		t.Fatal("callable must not run before subscription")
	}
	got, err := pipeline.Collect(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if !intSliceEqual(got, []int{42}) || calls != 1 {
		t.Errorf("got %v after %d calls", got, calls)
	}
}

func TestRange(t *testing.T) {
	tests := []struct {
		name         string
		start, count int
		want         []int
	}{
		{"five from five", 5, 5, []int{5, 6, 7, 8, 9}},
		{"empty", 3, 0, nil},
		{"negative start", -2, 3, []int{-2, -1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pipeline.Collect(context.Background(), pipeline.Range(tt.start, tt.count))
			if err != nil {
				t.Fatal(err)
			}
			if !intSliceEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRange_NegativeCountPanics(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.IsProtocolViolation(err) {
			t.Errorf("expected protocol violation panic, got %v", r)
		}
	}()
	pipeline.Range(0, -1)
}

func TestEmptyErrorNever(t *testing.T) {
	got, err := pipeline.Collect(context.Background(), pipeline.Empty[int]())
	if err != nil || len(got) != 0 {
		t.Errorf("Empty: got %v, %v", got, err)
	}

	boom := stderrors.New("boom")
	_, err = pipeline.Collect(context.Background(), pipeline.Error[int](boom))
	if !stderrors.Is(err, boom) {
		t.Errorf("Error: got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pipeline.Collect(ctx, pipeline.Never[int]())
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Never: expected deadline exceeded, got %v", err)
	}
}

func TestDefer(t *testing.T) {
	var n atomic.Int32
	p := pipeline.Defer(func() pipeline.Publisher[int32] {
		return pipeline.Just(n.Add(1))
	})
	first, _ := pipeline.Collect(context.Background(), p)
	second, _ := pipeline.Collect(context.Background(), p)
	if first[0] != 1 || second[0] != 2 {
		t.Errorf("factory should run per subscription, got %v then %v", first, second)
	}
}

func TestMap(t *testing.T) {
	p := pipeline.FromSlice([]int{1, 2, 3})
	doubled := pipeline.Map(p, func(_ context.Context, n int) (int, error) {
		return n * 2, nil
	})
	got, err := pipeline.Collect(context.Background(), doubled)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{2, 4, 6}
	if !intSliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMap_Error(t *testing.T) {
	p := pipeline.FromSlice([]int{1, 2, 3})
	var seen []int
	fail := pipeline.Map(p, func(_ context.Context, n int) (int, error) {
		seen = append(seen, n)
		if n == 2 {
			return 0, stderrors.New("bad value")
		}
		return n, nil
	})
	got, err := pipeline.Collect(context.Background(), fail)
	if !errors.HasCode(err, errors.ErrCodeOperator) {
		t.Fatalf("expected operator error, got %v", err)
	}
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("expected [1] before error, got %v", got)
	}
	if !intSliceEqual(seen, []int{1, 2}) {
		t.Errorf("upstream should be cancelled after the error, saw %v", seen)
	}
}

func TestMap_Panic(t *testing.T) {
	p := pipeline.Map(pipeline.Just(1), func(_ context.Context, n int) (int, error) {
		panic("kaboom")
	})
	_, err := pipeline.Collect(context.Background(), p)
	if !errors.HasCode(err, errors.ErrCodeOperator) {
		t.Fatalf("expected operator error from panic, got %v", err)
	}
}

func TestMap_TypeConversion(t *testing.T) {
	p := pipeline.FromSlice([]int{1, 2, 3})
	strs := pipeline.Map(p, func(_ context.Context, n int) (string, error) {
		return fmt.Sprintf("#%d", n), nil
	})
	got, err := pipeline.Collect(context.Background(), strs)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"#1", "#2", "#3"}
	if !strSliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFilter(t *testing.T) {
	p := pipeline.FromSlice([]int{1, 2, 3, 4, 5, 6})
	evens := pipeline.Filter(p, func(n int) bool { return n%2 == 0 })
	got, err := pipeline.Collect(context.Background(), evens)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{2, 4, 6}
	if !intSliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFilter_None(t *testing.T) {
	p := pipeline.FromSlice([]int{1, 3, 5})
	evens := pipeline.Filter(p, func(n int) bool { return n%2 == 0 })
	got, err := pipeline.Collect(context.Background(), evens)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
}

func TestFilterE_Error(t *testing.T) {
	p := pipeline.FilterE(pipeline.Just(1, 2), func(_ context.Context, n int) (bool, error) {
		return false, stderrors.New("predicate failed")
	})
	_, err := pipeline.Collect(context.Background(), p)
	if !errors.HasCode(err, errors.ErrCodeOperator) {
		t.Errorf("expected operator error, got %v", err)
	}
}

func TestTap(t *testing.T) {
	var tapped []int
	p := pipeline.FromSlice([]int{1, 2, 3})
	observed := pipeline.Tap(p, func(_ context.Context, n int) error {
		tapped = append(tapped, n)
		return nil
	})
	got, err := pipeline.Collect(context.Background(), observed)
	if err != nil {
		t.Fatal(err)
	}
	if !intSliceEqual(got, []int{1, 2, 3}) {
		t.Errorf("values should pass through unchanged, got %v", got)
	}
	if !intSliceEqual(tapped, []int{1, 2, 3}) {
		t.Errorf("tap should see all values, got %v", tapped)
	}
}

func TestTap_Error(t *testing.T) {
	p := pipeline.FromSlice([]int{1, 2, 3})
	failing := pipeline.Tap(p, func(_ context.Context, n int) error {
		if n == 2 {
			return stderrors.New("tap failed")
		}
		return nil
	})
	_, err := pipeline.Collect(context.Background(), failing)
	if err == nil || !strings.Contains(err.Error(), "tap failed") {
		t.Errorf("expected tap error, got %v", err)
	}
}

func TestFanOut(t *testing.T) {
	p := pipeline.FromSlice([]int{10})
	fanned := pipeline.FanOut(p,
		func(_ context.Context, n int) (string, error) { return fmt.Sprintf("a:%d", n), nil },
		func(_ context.Context, n int) (string, error) { return fmt.Sprintf("b:%d", n), nil },
	)
	got, err := pipeline.Collect(context.Background(), fanned)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("expected [[a:10 b:10]], got %v", got)
	}
	if got[0][0] != "a:10" || got[0][1] != "b:10" {
		t.Errorf("got %v, want [a:10 b:10]", got[0])
	}
}

func TestFanOut_Error(t *testing.T) {
	p := pipeline.FromSlice([]int{1})
	fanned := pipeline.FanOut(p,
		func(_ context.Context, n int) (int, error) { return n, nil },
		func(_ context.Context, n int) (int, error) { return 0, stderrors.New("branch failed") },
	)
	_, err := pipeline.Collect(context.Background(), fanned)
	if err == nil || !strings.Contains(err.Error(), "branch failed") {
		t.Errorf("expected branch error, got %v", err)
	}
}

func TestTapEach(t *testing.T) {
	var a, b []int
	p := pipeline.Just([]int{1, 2}, []int{3, 4})
	tapped := pipeline.TapEach(p,
		func(_ context.Context, n int) error { a = append(a, n); return nil },
		func(_ context.Context, n int) error { b = append(b, n); return nil },
	)
	if _, err := pipeline.Collect(context.Background(), tapped); err != nil {
		t.Fatal(err)
	}
	if !intSliceEqual(a, []int{1, 3}) || !intSliceEqual(b, []int{2, 4}) {
		t.Errorf("got a=%v b=%v", a, b)
	}
}

func TestReduce(t *testing.T) {
	p := pipeline.FromSlice([]int{1, 2, 3, 4})
	sum := pipeline.Reduce(p, 0, func(acc, n int) int { return acc + n })
	got, err := pipeline.Collect(context.Background(), sum)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != 10 {
		t.Errorf("got %v, want [10]", got)
	}
}

func TestReduce_Empty(t *testing.T) {
	p := pipeline.FromSlice([]int{})
	sum := pipeline.Reduce(p, 100, func(acc, n int) int { return acc + n })
	got, err := pipeline.Collect(context.Background(), sum)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != 100 {
		t.Errorf("got %v, want [100]", got)
	}
}

func TestCount(t *testing.T) {
	got, err := pipeline.Collect(context.Background(), pipeline.Count(pipeline.Range(0, 7)))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != 7 {
		t.Errorf("got %v, want [7]", got)
	}
}

func TestConcat(t *testing.T) {
	a := pipeline.FromSlice([]int{1, 2})
	b := pipeline.FromSlice([]int{3})
	c := pipeline.Empty[int]()
	d := pipeline.FromSlice([]int{4, 5})
	got, err := pipeline.Collect(context.Background(), pipeline.Concat[int](a, b, c, d))
	if err != nil {
		t.Fatal(err)
	}
	want := []int{1, 2, 3, 4, 5}
	if !intSliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestConcat_ErrorStops(t *testing.T) {
	subscribed := false
	tail := pipeline.Defer(func() pipeline.Publisher[int] {
		subscribed = true
		return pipeline.Just(9)
	})
	p := pipeline.Concat[int](pipeline.Just(1), pipeline.Error[int](stderrors.New("stop")), tail)
	got, err := pipeline.Collect(context.Background(), p)
	if err == nil || subscribed {
		t.Errorf("expected error before the tail, got %v (tail subscribed: %v)", err, subscribed)
	}
	if !intSliceEqual(got, []int{1}) {
		t.Errorf("got %v, want [1]", got)
	}
}

func TestParallel(t *testing.T) {
	pool := scheduler.NewParallel(scheduler.WithWorkers(4))
	defer pool.Close()

	p := pipeline.Range(1, 20)
	squared := pipeline.Parallel(p, 4, pool, func(_ context.Context, n int) (int, error) {
		return n * n, nil
	})
	got, err := pipeline.Collect(context.Background(), squared)
	if err != nil {
		t.Fatal(err)
	}
	sort.Ints(got)
	if len(got) != 20 || got[0] != 1 || got[19] != 400 {
		t.Errorf("got %v", got)
	}
}

func TestParallel_Error(t *testing.T) {
	pool := scheduler.NewParallel(scheduler.WithWorkers(2))
	defer pool.Close()

	p := pipeline.Range(1, 10)
	failing := pipeline.Parallel(p, 2, pool, func(_ context.Context, n int) (int, error) {
		if n == 5 {
			return 0, stderrors.New("worker failed")
		}
		return n, nil
	})
	_, err := pipeline.Collect(context.Background(), failing)
	if !errors.HasCode(err, errors.ErrCodeOperator) {
		t.Errorf("expected operator error, got %v", err)
	}
}

func TestMerge(t *testing.T) {
	a := pipeline.FromSlice([]int{1, 2, 3})
	b := pipeline.FromSlice([]int{4, 5, 6})
	got, err := pipeline.Collect(context.Background(), pipeline.Merge[int](a, b))
	if err != nil {
		t.Fatal(err)
	}
	sort.Ints(got)
	if !intSliceEqual(got, []int{1, 2, 3, 4, 5, 6}) {
		t.Errorf("got %v", got)
	}
}

func TestMerge_NoSources(t *testing.T) {
	got, err := pipeline.Collect(context.Background(), pipeline.Merge[int]())
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestDrain_Run(t *testing.T) {
	var collected []int
	p := pipeline.FromSlice([]int{1, 2, 3})
	err := pipeline.Drain(p, func(_ context.Context, n int) error {
		collected = append(collected, n)
		return nil
	}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !intSliceEqual(collected, []int{1, 2, 3}) {
		t.Errorf("got %v", collected)
	}
}

func TestDrain_SinkError(t *testing.T) {
	var pulled atomic.Int32
	p := pipeline.Tap(pipeline.Range(0, 100), func(_ context.Context, _ int) error {
		pulled.Add(1)
		return nil
	})
	err := pipeline.Drain(p, func(_ context.Context, n int) error {
		if n == 2 {
			return stderrors.New("sink full")
		}
		return nil
	}).Run(context.Background())
	if err == nil || err.Error() != "sink full" {
		t.Fatalf("expected sink error, got %v", err)
	}
	if n := pulled.Load(); n != 3 {
		t.Errorf("drain requests one value at a time, pulled %d", n)
	}
}

func TestForEach(t *testing.T) {
	sum := 0
	p := pipeline.FromSlice([]int{1, 2, 3})
	err := pipeline.ForEach(context.Background(), p, func(_ context.Context, n int) error {
		sum += n
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if sum != 6 {
		t.Errorf("sum = %d, want 6", sum)
	}
}

func TestSubscribe_Callbacks(t *testing.T) {
	var (
		values    []string
		completed bool
	)
	pipeline.Subscribe(context.Background(), pipeline.Just("a", "b"),
		func(s string) { values = append(values, s) },
		func(err error) { t.Errorf("unexpected error %v", err) },
		func() { completed = true },
	)
	if !strSliceEqual(values, []string{"a", "b"}) || !completed {
		t.Errorf("got %v completed=%v", values, completed)
	}
}

func TestContext_Cancellation(t *testing.T) {
	v := scheduler.NewVirtual()
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var got []int64
	pipeline.Subscribe(ctx, pipeline.Interval(time.Second, v),
		func(n int64) {
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
		}, nil, nil)

	v.AdvanceBy(3 * time.Second)
	cancel()
	// context.AfterFunc runs asynchronously.
	deadline := time.Now().Add(time.Second)
	for v.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	v.AdvanceBy(3 * time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Errorf("expected 3 ticks before cancel, got %v", got)
	}
	if v.Pending() != 0 {
		t.Errorf("cancel should remove the periodic task, %d pending", v.Pending())
	}
}

func TestChained_Pipeline(t *testing.T) {
	p := pipeline.Range(1, 10)
	doubled := pipeline.Map(p, func(_ context.Context, n int) (int, error) {
		return n * 2, nil
	})
	big := pipeline.Filter(doubled, func(n int) bool { return n > 10 })
	labeled := pipeline.Map(big, func(_ context.Context, n int) (string, error) {
		return fmt.Sprintf("v%d", n), nil
	})
	got, err := pipeline.Collect(context.Background(), pipeline.Take(labeled, 3))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"v12", "v14", "v16"}
	if !strSliceEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFanOut_TapEach_Pipeline(t *testing.T) {
	var published []string
	p := pipeline.Just("go", "rust")
	fanned := pipeline.FanOut(p,
		func(_ context.Context, s string) (string, error) { return strings.ToUpper(s), nil },
		func(_ context.Context, s string) (string, error) { return fmt.Sprintf("%d", len(s)), nil },
	)
	tapped := pipeline.TapEach(fanned,
		func(_ context.Context, s string) error { published = append(published, s); return nil },
	)
	got, err := pipeline.Collect(context.Background(), tapped)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1][0] != "RUST" || got[1][1] != "4" {
		t.Errorf("got %v", got)
	}
	if !strSliceEqual(published, []string{"GO", "RUST"}) {
		t.Errorf("published %v", published)
	}
}

func intSliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func strSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

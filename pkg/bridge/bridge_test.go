package bridge_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/csweichel/notefs/pkg/bridge"
)

func TestDo(t *testing.T) {
	b := bridge.New(1)
	b.Start(context.Background())
	defer b.Stop()

	res, err := bridge.Do(b, func(ctx context.Context) (string, error) {
		return "hello", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if res != "hello" {
		t.Errorf("Do() = %q, want %q", res, "hello")
	}

	expErr := errors.New("boom")
	_, err = bridge.Do(b, func(ctx context.Context) (int, error) {
		return 0, expErr
	})
	if !errors.Is(err, expErr) {
		t.Errorf("Do() error = %v, want %v", err, expErr)
	}
}

func TestDoRecoversPanics(t *testing.T) {
	b := bridge.New(1)
	b.Start(context.Background())
	defer b.Stop()

	_, err := bridge.Do(b, func(ctx context.Context) (int, error) {
		panic("oops")
	})
	if err == nil {
		t.Fatal("expected an error from a panicking job")
	}

	// the worker survives
	res, err := bridge.Do(b, func(ctx context.Context) (int, error) { return 42, nil })
	if err != nil || res != 42 {
		t.Errorf("Do() after panic = %d, %v", res, err)
	}
}

func TestSingleWorkerSerialises(t *testing.T) {
	b := bridge.New(1)
	b.Start(context.Background())
	defer b.Stop()

	var (
		running int32
		overlap int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = bridge.Do(b, func(ctx context.Context) (struct{}, error) {
				if atomic.AddInt32(&running, 1) > 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&running, -1)
				return struct{}{}, nil
			})
		}()
	}
	wg.Wait()

	if overlap != 0 {
		t.Error("jobs ran concurrently on a single-worker bridge")
	}
}

func TestStop(t *testing.T) {
	b := bridge.New(2)
	b.Start(context.Background())
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}
	// stopping twice is fine
	if err := b.Stop(); err != nil {
		t.Fatal(err)
	}

	_, err := bridge.Do(b, func(ctx context.Context) (int, error) { return 1, nil })
	if !errors.Is(err, bridge.ErrStopped) {
		t.Errorf("Do() after Stop() error = %v, want ErrStopped", err)
	}
}

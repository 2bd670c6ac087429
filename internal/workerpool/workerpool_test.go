package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolDoBoundsConcurrency(t *testing.T) {
	p := New(2)
	var inFlight, maxInFlight int32

	release := make(chan struct{})
	done := make(chan struct{}, 5)

	for i := 0; i < 5; i++ {
		go func() {
			_ = p.Do(context.Background(), func() error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&maxInFlight)
					if n <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, n) {
						break
					}
				}
				<-release
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			done <- struct{}{}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(2))
	close(release)

	for i := 0; i < 5; i++ {
		<-done
	}
}

func TestPoolSubmitDeliversResult(t *testing.T) {
	p := New(1)
	out := p.Submit(context.Background(), func() (interface{}, error) {
		return 42, nil
	})
	res := <-out
	require.NoError(t, res.Err)
	assert.Equal(t, 42, res.Value)
}

func TestPoolDoRespectsContextCancellation(t *testing.T) {
	p := New(1)
	block := make(chan struct{})
	go p.Do(context.Background(), func() error {
		<-block
		return nil
	})
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Do(ctx, func() error { return nil })
	assert.Error(t, err)
	close(block)
}

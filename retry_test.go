package luco_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"syscall"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sync/errgroup"

	luco "github.com/JohnPlummer/jp-go-luco"
)

var _ = Describe("RetryPolicy", func() {
	It("doubles the delay on every retry without a cap", func() {
		policy := luco.RetryPolicy{MaxRetries: 5, BaseDelay: 1000 * time.Millisecond}

		Expect(policy.Delay(0)).To(Equal(1000 * time.Millisecond))
		Expect(policy.Delay(1)).To(Equal(2000 * time.Millisecond))
		Expect(policy.Delay(2)).To(Equal(4000 * time.Millisecond))
		Expect(policy.Delay(3)).To(Equal(8000 * time.Millisecond))
		Expect(policy.Delay(10)).To(Equal(1024 * time.Second))
	})

	It("saturates instead of overflowing", func() {
		policy := luco.RetryPolicy{BaseDelay: time.Hour}
		Expect(policy.Delay(62)).To(Equal(time.Duration(math.MaxInt64)))
		Expect(policy.Delay(100)).To(Equal(time.Duration(math.MaxInt64)))
	})

	It("returns zero delays for a zero base delay", func() {
		policy := luco.RetryPolicy{MaxRetries: 3}
		Expect(policy.Delay(0)).To(BeZero())
		Expect(policy.Delay(3)).To(BeZero())
	})

	It("yields MaxRetries delays and then stops", func() {
		backoff := luco.RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}.Backoff()

		var delays []time.Duration
		for {
			d, stop := backoff.Next()
			if stop {
				break
			}
			delays = append(delays, d)
		}
		Expect(delays).To(Equal([]time.Duration{time.Second, 2 * time.Second, 4 * time.Second}))
	})

	It("starts every backoff from the base delay", func() {
		policy := luco.RetryPolicy{MaxRetries: 2, BaseDelay: time.Second}
		first := policy.Backoff()
		_, _ = first.Next()
		_, _ = first.Next()

		d, stop := policy.Backoff().Next()
		Expect(stop).To(BeFalse())
		Expect(d).To(Equal(time.Second))
	})
})

var _ = Describe("RetryingInvoker", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		exec     *scriptedExecutor
		recorder *delayRecorder
		req      *http.Request
		connErr  error
	)

	newInvoker := func(maxRetries int, base time.Duration) *luco.RetryingInvoker {
		return luco.NewRetryingInvoker(
			exec,
			luco.RetryPolicy{MaxRetries: maxRetries, BaseDelay: base},
			luco.WithInvokerLogger(quietLogger()),
			luco.WithInvokerRetryHook(recorder.hook),
		)
	}

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		exec = &scriptedExecutor{}
		recorder = &delayRecorder{}
		connErr = syscall.ECONNREFUSED

		var err error
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, "http://luco.test/api/v1/info", nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cancel()
	})

	Describe("NewRetryingInvoker", func() {
		It("treats negative values as zero", func() {
			invoker := luco.NewRetryingInvoker(exec, luco.RetryPolicy{MaxRetries: -2, BaseDelay: -time.Second})
			Expect(invoker.Policy()).To(Equal(luco.RetryPolicy{}))
		})
	})

	Describe("Do", func() {
		Context("transport failures", func() {
			DescribeTable("makes exactly MaxRetries+1 attempts before surfacing the failure",
				func(maxRetries int) {
					exec.steps = append(exec.steps, fail(connErr))

					resp, err := newInvoker(maxRetries, time.Millisecond).Do(ctx, req)
					Expect(resp).To(BeNil())
					Expect(err).To(HaveOccurred())
					Expect(luco.KindOf(err)).To(Equal(luco.KindTransport))
					Expect(errors.Is(err, syscall.ECONNREFUSED)).To(BeTrue())
					Expect(exec.callCount()).To(Equal(maxRetries + 1))
					Expect(recorder.count()).To(Equal(maxRetries))
				},
				Entry("no retries", 0),
				Entry("one retry", 1),
				Entry("three retries", 3),
				Entry("five retries", 5),
			)

			It("returns the success that follows earlier failures", func() {
				exec.steps = append(exec.steps,
					fail(connErr),
					fail(connErr),
					respond(200, `{"success":true}`),
				)

				resp, err := newInvoker(3, time.Millisecond).Do(ctx, req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(200))
				Expect(exec.callCount()).To(Equal(3))
				Expect(recorder.recorded()).To(Equal([]time.Duration{time.Millisecond, 2 * time.Millisecond}))
			})
		})

		Context("client errors", func() {
			DescribeTable("returns the response on the first attempt",
				func(status int) {
					exec.steps = append(exec.steps, respond(status, `{"message":"nope"}`))

					resp, err := newInvoker(5, time.Millisecond).Do(ctx, req)
					Expect(err).NotTo(HaveOccurred())
					Expect(resp.StatusCode).To(Equal(status))
					Expect(exec.callCount()).To(Equal(1))
					Expect(recorder.count()).To(BeZero())
				},
				Entry("400 bad request", 400),
				Entry("401 unauthorized", 401),
				Entry("403 forbidden", 403),
				Entry("404 not found", 404),
				Entry("422 unprocessable", 422),
			)
		})

		Context("retryable statuses", func() {
			It("retries a 429 once and returns the following 200 after one base delay", func() {
				exec.steps = append(exec.steps,
					respond(429, `{"message":"slow down"}`),
					respond(200, `{"success":true}`),
				)

				resp, err := newInvoker(3, 5*time.Millisecond).Do(ctx, req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(200))
				Expect(exec.callCount()).To(Equal(2))
				Expect(recorder.recorded()).To(Equal([]time.Duration{5 * time.Millisecond}))
				Expect(recorder.attempts).To(Equal([]int{0}))
			})

			DescribeTable("retries server errors",
				func(status int) {
					exec.steps = append(exec.steps,
						respond(status, `{}`),
						respond(status, `{}`),
						respond(200, `{"success":true}`),
					)

					resp, err := newInvoker(5, time.Millisecond).Do(ctx, req)
					Expect(err).NotTo(HaveOccurred())
					Expect(resp.StatusCode).To(Equal(200))
					Expect(exec.callCount()).To(Equal(3))
				},
				Entry("500 internal server error", 500),
				Entry("502 bad gateway", 502),
				Entry("503 service unavailable", 503),
				Entry("504 gateway timeout", 504),
				Entry("599 nonstandard", 599),
			)

			DescribeTable("returns statuses outside 2xx, 4xx and 5xx without retrying",
				func(status int) {
					exec.steps = append(exec.steps, respond(status, `{}`))

					resp, err := newInvoker(2, time.Millisecond).Do(ctx, req)
					Expect(err).NotTo(HaveOccurred())
					Expect(resp.StatusCode).To(Equal(status))
					Expect(exec.callCount()).To(Equal(1))
					Expect(recorder.count()).To(BeZero())
				},
				Entry("304 not modified", 304),
				Entry("302 found", 302),
				Entry("101 switching protocols", 101),
			)

			It("returns a 500 as-is with zero sleeps when MaxRetries is 0", func() {
				exec.steps = append(exec.steps, respond(500, `{"message":"boom"}`))

				resp, err := newInvoker(0, time.Millisecond).Do(ctx, req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(500))
				Expect(exec.callCount()).To(Equal(1))
				Expect(recorder.count()).To(BeZero())
			})

			It("surfaces the last response once the budget is exhausted", func() {
				bodies := []*trackedBody{
					{Reader: bytes.NewReader([]byte(`{"attempt":1}`))},
					{Reader: bytes.NewReader([]byte(`{"attempt":2}`))},
					{Reader: bytes.NewReader([]byte(`{"attempt":3}`))},
				}
				for _, b := range bodies {
					body := b
					exec.steps = append(exec.steps, func(r *http.Request) (*http.Response, error) {
						return &http.Response{StatusCode: 503, Body: body, Header: http.Header{}, Request: r}, nil
					})
				}

				resp, err := newInvoker(2, time.Millisecond).Do(ctx, req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(503))
				Expect(exec.callCount()).To(Equal(3))

				Expect(bodies[0].closed.Load()).To(BeTrue())
				Expect(bodies[1].closed.Load()).To(BeTrue())
				Expect(bodies[2].closed.Load()).To(BeFalse())

				data, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal(`{"attempt":3}`))
			})

			It("grows the backoff exponentially across retries", func() {
				exec.steps = append(exec.steps, respond(503, `{}`))

				_, err := newInvoker(4, time.Millisecond).Do(ctx, req)
				Expect(err).NotTo(HaveOccurred())
				Expect(recorder.recorded()).To(Equal([]time.Duration{
					time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 8 * time.Millisecond,
				}))
			})
		})

		Context("request bodies", func() {
			It("replays the body on every attempt", func() {
				var seen []string
				var mu sync.Mutex
				record := func(r *http.Request) {
					data, _ := io.ReadAll(r.Body)
					mu.Lock()
					seen = append(seen, string(data))
					mu.Unlock()
				}
				exec.steps = append(exec.steps,
					func(r *http.Request) (*http.Response, error) { record(r); return respond(502, `{}`)(r) },
					func(r *http.Request) (*http.Response, error) { record(r); return respond(200, `{}`)(r) },
				)

				post, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://luco.test/api/v1/email/send",
					bytes.NewReader([]byte(`{"to":"a@b.c"}`)))
				Expect(err).NotTo(HaveOccurred())

				resp, err := newInvoker(2, time.Millisecond).Do(ctx, post)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(200))
				Expect(seen).To(Equal([]string{`{"to":"a@b.c"}`, `{"to":"a@b.c"}`}))
			})
		})

		Context("cancellation", func() {
			It("returns immediately when the context is already done", func() {
				exec.steps = append(exec.steps, respond(200, `{}`))
				done, stop := context.WithCancel(context.Background())
				stop()

				resp, err := newInvoker(3, time.Millisecond).Do(done, req)
				Expect(resp).To(BeNil())
				Expect(errors.Is(err, luco.ErrInterrupted)).To(BeTrue())
				Expect(errors.Is(err, context.Canceled)).To(BeTrue())
				Expect(exec.callCount()).To(BeZero())
			})

			It("surfaces the last transport failure when canceled during backoff", func() {
				exec.steps = append(exec.steps, fail(connErr))
				invoker := luco.NewRetryingInvoker(
					exec,
					luco.RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour},
					luco.WithInvokerLogger(quietLogger()),
					luco.WithInvokerRetryHook(func(int, time.Duration, error) { cancel() }),
				)

				start := time.Now()
				resp, err := invoker.Do(ctx, req)
				Expect(time.Since(start)).To(BeNumerically("<", time.Second))
				Expect(resp).To(BeNil())
				Expect(luco.KindOf(err)).To(Equal(luco.KindTransport))
				Expect(errors.Is(err, syscall.ECONNREFUSED)).To(BeTrue())
				Expect(errors.Is(err, luco.ErrInterrupted)).To(BeFalse())
				Expect(exec.callCount()).To(Equal(1))
			})

			It("reports an interruption when canceled after a retryable response", func() {
				exec.steps = append(exec.steps, respond(503, `{}`))
				invoker := luco.NewRetryingInvoker(
					exec,
					luco.RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour},
					luco.WithInvokerLogger(quietLogger()),
					luco.WithInvokerRetryHook(func(int, time.Duration, error) { cancel() }),
				)

				resp, err := invoker.Do(ctx, req)
				Expect(resp).To(BeNil())
				Expect(luco.KindOf(err)).To(Equal(luco.KindTransport))
				Expect(errors.Is(err, luco.ErrInterrupted)).To(BeTrue())
				Expect(exec.callCount()).To(Equal(1))
			})
		})

		Context("thread safety", func() {
			It("keeps per-call state separate across concurrent calls", func() {
				var mu sync.Mutex
				failedOnce := map[string]bool{}
				exec.steps = append(exec.steps, func(r *http.Request) (*http.Response, error) {
					key := r.URL.Query().Get("id")
					mu.Lock()
					first := !failedOnce[key]
					failedOnce[key] = true
					mu.Unlock()
					if first {
						return respond(503, `{}`)(r)
					}
					return respond(200, `{}`)(r)
				})

				invoker := luco.NewRetryingInvoker(
					exec,
					luco.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond},
					luco.WithInvokerLogger(quietLogger()),
				)

				const concurrency = 50
				var g errgroup.Group
				for i := 0; i < concurrency; i++ {
					g.Go(func() error {
						r, err := http.NewRequestWithContext(ctx, http.MethodGet,
							"http://luco.test/api/v1/info?id="+string(rune('A'+i%26))+string(rune('a'+i/26)), nil)
						if err != nil {
							return err
						}
						resp, err := invoker.Do(ctx, r)
						if err != nil {
							return err
						}
						defer resp.Body.Close()
						if resp.StatusCode != http.StatusOK {
							return fmt.Errorf("request %d: status %d", i, resp.StatusCode)
						}
						return nil
					})
				}
				Expect(g.Wait()).To(Succeed())

				Expect(exec.callCount()).To(Equal(2 * concurrency))
			})
		})
	})
})

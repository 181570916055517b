package luco_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	luco "github.com/JohnPlummer/jp-go-luco"
)

var _ = Describe("HealthStatus", func() {
	It("marshals with snake_case keys", func() {
		health := luco.HealthStatus{
			Healthy:              false,
			Status:               "open",
			Requests:             5,
			TotalFailures:        5,
			ConsecutiveFailures:  5,
			ConsecutiveSuccesses: 0,
		}

		data, err := json.Marshal(health)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(MatchJSON(`{
			"healthy": false,
			"status": "open",
			"requests": 5,
			"total_successes": 0,
			"total_failures": 5,
			"consecutive_failures": 5,
			"consecutive_successes": 0
		}`))
	})

	It("starts a default breaker closed", func() {
		health := luco.NewCircuitBreaker(nil, quietLogger()).Health()
		Expect(health.Healthy).To(BeTrue())
		Expect(health.Status).To(Equal("closed"))
		Expect(health.Requests).To(BeZero())
	})
})

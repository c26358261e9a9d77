package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteEstimatesTotal counts computed estimates by classified load size.
	QuoteEstimatesTotal *prometheus.CounterVec
	// QuoteRequestsTotal counts submitted quote requests by outcome.
	QuoteRequestsTotal *prometheus.CounterVec
	// ReferralCodesIssuedTotal counts issued referral codes.
	ReferralCodesIssuedTotal prometheus.Counter
	// ReferralRedemptionsTotal counts redemption attempts by outcome.
	ReferralRedemptionsTotal *prometheus.CounterVec
	// CreditAppliedTotal accumulates credit minor units applied to invoices.
	CreditAppliedTotal prometheus.Counter
	// FollowupEmailsTotal counts follow-up email deliveries by outcome.
	FollowupEmailsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteEstimatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_estimates_total",
			Help:      "Count of computed quote estimates by load size.",
		}, []string{"load_size"})
		QuoteRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_requests_total",
			Help:      "Count of submitted quote requests by outcome.",
		}, []string{"result"})
		ReferralCodesIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "referral_codes_issued_total",
			Help:      "Total number of referral codes issued.",
		})
		ReferralRedemptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "referral_redemptions_total",
			Help:      "Count of referral redemption attempts by outcome.",
		}, []string{"result"})
		CreditAppliedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_applied_minor_units_total",
			Help:      "Sum of credit minor units applied to invoices.",
		})
		FollowupEmailsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "followup_emails_total",
			Help:      "Count of quote follow-up email deliveries by outcome.",
		}, []string{"result"})

		mustRegisterCollector(reg, QuoteEstimatesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuoteEstimatesTotal = v
			}
		})
		mustRegisterCollector(reg, QuoteRequestsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuoteRequestsTotal = v
			}
		})
		mustRegisterCollector(reg, ReferralCodesIssuedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				ReferralCodesIssuedTotal = v
			}
		})
		mustRegisterCollector(reg, ReferralRedemptionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReferralRedemptionsTotal = v
			}
		})
		mustRegisterCollector(reg, CreditAppliedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CreditAppliedTotal = v
			}
		})
		mustRegisterCollector(reg, FollowupEmailsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				FollowupEmailsTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}

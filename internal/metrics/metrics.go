// Package metrics собирает и публикует метрики Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder — интерфейс записи метрик аутентификации для хендлеров
// и middleware.
type Recorder interface {
	RecordLoginSuccess()
	RecordLoginFailure(reason string)
	RecordSignup()
	RecordVerification()
	RecordRefresh(result string)
	RecordCSRFFailure()
	RecordRateLimited(route string)
}

// Collector реализует Recorder поверх Prometheus.
type Collector struct {
	loginSuccess  prometheus.Counter
	loginFail     *prometheus.CounterVec
	signups       prometheus.Counter
	verifications prometheus.Counter
	refreshes     *prometheus.CounterVec
	csrfFail      prometheus.Counter
	rateLimited   *prometheus.CounterVec
}

// NewCollector создает Collector и регистрирует метрики в реестре.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authd_login_success_total",
			Help: "Число успешных входов",
		}),
		loginFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authd_login_fail_total",
			Help: "Число неудачных входов по причинам",
		}, []string{"reason"}),
		signups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authd_signup_total",
			Help: "Число регистраций",
		}),
		verifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authd_email_verified_total",
			Help: "Число подтвержденных адресов почты",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authd_token_refresh_total",
			Help: "Число обновлений access-токена по результатам",
		}, []string{"result"}),
		csrfFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authd_csrf_fail_total",
			Help: "Число отклоненных CSRF-проверок",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authd_rate_limited_total",
			Help: "Число запросов, отклоненных rate limiter, по маршрутам",
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.signups,
		c.verifications,
		c.refreshes,
		c.csrfFail,
		c.rateLimited,
	)

	return c
}

// RecordLoginSuccess фиксирует успешный вход.
func (c *Collector) RecordLoginSuccess() { c.loginSuccess.Inc() }

// RecordLoginFailure фиксирует неудачный вход с причиной.
func (c *Collector) RecordLoginFailure(reason string) {
	c.loginFail.WithLabelValues(reason).Inc()
}

// RecordSignup фиксирует регистрацию.
func (c *Collector) RecordSignup() { c.signups.Inc() }

// RecordVerification фиксирует подтверждение адреса почты.
func (c *Collector) RecordVerification() { c.verifications.Inc() }

// RecordRefresh фиксирует попытку обновления токена.
func (c *Collector) RecordRefresh(result string) {
	c.refreshes.WithLabelValues(result).Inc()
}

// RecordCSRFFailure фиксирует отклоненную CSRF-проверку.
func (c *Collector) RecordCSRFFailure() { c.csrfFail.Inc() }

// RecordRateLimited фиксирует срабатывание rate limiter.
func (c *Collector) RecordRateLimited(route string) {
	c.rateLimited.WithLabelValues(route).Inc()
}

// Handler возвращает HTTP-хендлер для scrape Prometheus.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

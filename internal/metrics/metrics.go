package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignupsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classattend_signups_total",
		Help: "Total number of account registrations.",
	})
	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classattend_logins_total",
		Help: "Total number of login attempts by method and outcome.",
	}, []string{"method", "status"}) // method: "password" or "otp"

	OTPIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classattend_otp_issued_total",
		Help: "Total number of OTP issuance attempts.",
	}, []string{"status"})
	OTPRedeemedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classattend_otp_redeemed_total",
		Help: "Total number of OTP redemption attempts by outcome.",
	}, []string{"status"}) // status: "ok", "no_challenge", "expired", "invalid"

	FaceVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classattend_face_verifications_total",
		Help: "Total number of face verifications by outcome.",
	}, []string{"result"}) // result: "match", "no_match", "error"

	AttendanceMarkedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classattend_attendance_marked_total",
		Help: "Total number of attendance marks, split by fresh vs repeat.",
	}, []string{"result"}) // result: "marked" or "already_marked"
)

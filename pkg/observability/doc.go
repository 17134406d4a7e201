// Package observability provides structured logging and Prometheus metrics
// for the access core.
//
// Create a logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("email", email).Info("login attempt")
//
// Register metrics:
//
//	metrics := observability.NewMetrics(nil)
//	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
//	http.Handle("/metrics", metrics.Handler())
package observability

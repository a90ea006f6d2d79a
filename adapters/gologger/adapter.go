package gologger

import (
	"github.com/goliatone/go-claimintake/core"
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// ReconcileLoggerName names the logger used by background reconcile workers.
const ReconcileLoggerName = "claimintake.reconcile"

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ForReconcileWorker resolves the service logging stack for a reconcile
// worker: the glog logger for worker hooks and the go-job provider for the
// queue runtime.
func ForReconcileWorker(deps core.ServiceDependencies) (glog.Logger, job.LoggerProvider) {
	provider, logger := Resolve(ReconcileLoggerName, deps.LoggerProvider, deps.Logger)
	logger = glog.Ensure(logger)
	return logger, ToJobProvider(provider)
}

// Package server owns the daemon's wire endpoint: a framed one-request
// at-a-time listener and the dispatcher that decodes, authenticates and
// routes each operation.
//
// The dispatcher is deliberately quiet: requests that fail to decode,
// fail token validation or miss a required field are logged and
// dropped without a reply. Callers are expected to run a timeout.
package server

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/diskwarden/diskwarden/pkg/api"
	"github.com/diskwarden/diskwarden/pkg/auth"
	"github.com/diskwarden/diskwarden/pkg/backend"
	"github.com/diskwarden/diskwarden/pkg/metrics"
)

// Discoverer is the slice of device discovery the dispatcher consumes.
type Discoverer interface {
	Enumerate(ctx context.Context) ([]api.Disk, error)
}

// Config carries the dispatcher's collaborators, selected once at
// startup.
type Config struct {
	Backend   backend.Backend
	Discovery Discoverer
	Auth      auth.Validator

	// Metrics defaults to a no-op recorder.
	Metrics metrics.Recorder

	// AuthReject answers failed validation with an ERR result instead
	// of the default silent drop.
	AuthReject bool

	// Simulate forces validation-only backend calls for every request.
	Simulate bool
}

// Dispatcher routes decoded operations to discovery or the backend.
type Dispatcher struct {
	cfg Config
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	return &Dispatcher{cfg: cfg}
}

// Handle processes one raw request and returns the reply bytes. The
// bool is false when the request earns no reply.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) ([]byte, bool) {
	started := time.Now()

	op, err := api.UnmarshalOperation(raw)
	if err != nil {
		log.WithError(err).Info("Dropping request that does not decode")
		d.cfg.Metrics.ObserveRequest("undecodable", metrics.OutcomeDropped, time.Since(started))
		return nil, false
	}

	name := op.OpType.String()
	logger := log.WithField("op", name)

	if err := d.cfg.Auth.Validate(ctx, op.Token); err != nil {
		logger.WithError(err).Warn("Request failed token validation")
		d.cfg.Metrics.ObserveRequest(name, metrics.OutcomeDropped, time.Since(started))
		if d.cfg.AuthReject {
			return (&api.OpResult{
				Result:   api.ResultErr,
				ErrorMsg: api.String("unauthorized"),
			}).Marshal(), true
		}
		return nil, false
	}

	reply, outcome := d.route(ctx, logger, op)
	d.cfg.Metrics.ObserveRequest(name, outcome, time.Since(started))
	return reply, reply != nil
}

func (d *Dispatcher) route(ctx context.Context, logger *log.Entry, op *api.Operation) ([]byte, string) {
	switch op.OpType {
	case api.OpList:
		disks, err := d.cfg.Discovery.Enumerate(ctx)
		if err != nil {
			logger.WithError(err).Error("Device enumeration failed")
			return errReply(err), metrics.OutcomeErr
		}
		d.cfg.Metrics.SetDisksEnumerated(len(disks))
		logger.WithField("disks", len(disks)).Debug("Enumerated host disks")
		return (&api.Disks{Disk: disks}).Marshal(), metrics.OutcomeOK

	case api.OpAdd:
		if op.Disk == nil {
			logger.Info("Dropping request without a disk path")
			return nil, metrics.OutcomeDropped
		}
		err := d.cfg.Backend.AddDisk(ctx, op.GetDisk(), op.OsdID,
			op.GetOsdJournal(), op.OsdJournalPartition, d.cfg.Simulate)
		return d.resultReply(logger, op, err)

	case api.OpRemove:
		if op.Disk == nil {
			logger.Info("Dropping request without a disk path")
			return nil, metrics.OutcomeDropped
		}
		err := d.cfg.Backend.RemoveDisk(ctx, op.GetDisk(), d.cfg.Simulate)
		return d.resultReply(logger, op, err)

	case api.OpSafeToRemove:
		if op.Disk == nil {
			logger.Info("Dropping request without a disk path")
			return nil, metrics.OutcomeDropped
		}
		safe, err := d.cfg.Backend.SafeToRemove(ctx, op.GetDisk(), d.cfg.Simulate)
		if err != nil {
			logger.WithError(err).Warn("Safety check failed")
			return (&api.OpBoolResult{
				Result:   api.ResultErr,
				ErrorMsg: api.String(err.Error()),
			}).Marshal(), metrics.OutcomeErr
		}
		logger.WithFields(log.Fields{"device": op.GetDisk(), "safe": safe}).Info("Safety check answered")
		return (&api.OpBoolResult{
			Result: api.ResultOK,
			Value:  api.Bool(safe),
		}).Marshal(), metrics.OutcomeOK

	case api.OpAddPartition:
		if op.Disk == nil {
			logger.Info("Dropping request without a disk path")
			return nil, metrics.OutcomeDropped
		}
		// Accepted placeholder: no action, no reply.
		logger.WithField("device", op.GetDisk()).Info("add_partition accepted, nothing to do")
		return nil, metrics.OutcomeOK
	}

	logger.Info("Dropping request with an unroutable op")
	return nil, metrics.OutcomeDropped
}

// resultReply turns a backend verdict into an OpResult, carrying the
// error message through verbatim.
func (d *Dispatcher) resultReply(logger *log.Entry, op *api.Operation, err error) ([]byte, string) {
	if err != nil {
		logger.WithError(err).WithField("device", op.GetDisk()).Warn("Backend rejected the operation")
		return errReply(err), metrics.OutcomeErr
	}
	logger.WithField("device", op.GetDisk()).Info("Operation completed")
	return (&api.OpResult{Result: api.ResultOK}).Marshal(), metrics.OutcomeOK
}

func errReply(err error) []byte {
	return (&api.OpResult{
		Result:   api.ResultErr,
		ErrorMsg: api.String(err.Error()),
	}).Marshal()
}

package worker

import (
	"fmt"
	"sync/atomic"

	"github.com/pretzelio/pretzel/src/crypto"
	"github.com/pretzelio/pretzel/src/crypto/keys"
	"github.com/pretzelio/pretzel/src/graph"
	"github.com/pretzelio/pretzel/src/net"
	"github.com/sirupsen/logrus"
)

// nextMeta stamps an outbound request with this worker's ID and a fresh
// sequence number. The pair never repeats for the lifetime of the job, which
// is what lets receivers reserve requests and silence retries.
func (w *Worker) nextMeta() net.RequestMeta {
	return net.RequestMeta{
		ClientID:  w.identity.ID(),
		RequestID: atomic.AddUint64(&w.requestSeq, 1),
	}
}

// withRetries re-attempts a request that failed in transit. Callers build the
// request once, so every attempt carries the same (ClientID, RequestID) pair
// and a receiver that already executed it acknowledges the retry without
// applying it again.
func (w *Worker) withRetries(call func() error) error {
	retries := w.conf.RequestRetries
	if retries < 1 {
		retries = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		if err = call(); err == nil {
			return nil
		}
		if attempt >= retries {
			return err
		}
		w.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err,
		}).Debug("Retrying request")
	}
}

// Authenticate runs the challenge-response handshake with the worker at
// target. The first leg announces this worker's ID and collects a challenge;
// the second leg returns the challenge signed with this worker's private key.
// Over a pooled transport the two legs may travel on different connections,
// each with its own session on the receiving side; repeating a handshake on
// an established session is harmless, so this still converges to READY.
func (w *Worker) Authenticate(target string) error {
	w.logger.WithFields(logrus.Fields{
		"target": target,
	}).Debug("Authenticate()")

	args := net.AuthRequest{
		FromID: w.identity.ID(),
	}

	var out net.AuthResponse

	if err := w.trans.Authenticate(target, &args, &out); err != nil {
		return err
	}

	if out.Complete {
		return nil
	}

	r, s, err := keys.Sign(w.identity.Key, crypto.SHA256(out.Challenge))
	if err != nil {
		return err
	}

	args.Signature = keys.EncodeSignature(r, s)

	if err := w.trans.Authenticate(target, &args, &out); err != nil {
		return err
	}

	if !out.Complete {
		return fmt.Errorf("handshake with %s did not complete", target)
	}

	return nil
}

// SendMessages delivers a batch of next-superstep messages to the worker at
// target.
func (w *Worker) SendMessages(target string, msgs []graph.Message) error {
	args := net.MessageBatchRequest{
		RequestMeta: w.nextMeta(),
		Messages:    msgs,
	}

	var out net.MessageBatchResponse

	err := w.withRetries(func() error {
		return w.trans.SendMessages(target, &args, &out)
	})

	if err != nil {
		w.logger.WithField("error", err).Error("SendMessages()")
		return err
	}

	w.logger.WithFields(logrus.Fields{
		"from_id": out.FromID,
		"success": out.Success,
	}).Debug("MessageBatchResponse")

	return nil
}

// SendMutations delivers a batch of structural mutations to the worker at
// target.
func (w *Worker) SendMutations(target string, mutations []net.VertexMutation) error {
	args := net.MutationBatchRequest{
		RequestMeta: w.nextMeta(),
		Mutations:   mutations,
	}

	var out net.MutationBatchResponse

	err := w.withRetries(func() error {
		return w.trans.SendMutations(target, &args, &out)
	})

	if err != nil {
		w.logger.WithField("error", err).Error("SendMutations()")
		return err
	}

	w.logger.WithFields(logrus.Fields{
		"from_id": out.FromID,
		"success": out.Success,
	}).Debug("MutationBatchResponse")

	return nil
}

// SendVertices hands the vertices of a partition over to the worker at
// target, which is taking ownership of them.
func (w *Worker) SendVertices(target string, partition graph.PartitionID, vertices []*graph.Vertex) error {
	args := net.VertexExchangeRequest{
		RequestMeta: w.nextMeta(),
		PartitionID: partition,
		Vertices:    vertices,
	}

	var out net.VertexExchangeResponse

	err := w.withRetries(func() error {
		return w.trans.SendVertices(target, &args, &out)
	})

	if err != nil {
		w.logger.WithField("error", err).Error("SendVertices()")
		return err
	}

	w.logger.WithFields(logrus.Fields{
		"from_id": out.FromID,
		"success": out.Success,
	}).Debug("VertexExchangeResponse")

	return nil
}

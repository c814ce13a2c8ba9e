package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// EtcdRegistrationManager advertises bookie availability as etcd keys
// attached to a session lease, so a bookie that dies without
// unregistering disappears from the cluster when its lease expires.
type EtcdRegistrationManager struct {
	client      *clientv3.Client
	session     *concurrency.Session
	clusterName string
	instanceID  uuid.UUID
}

func NewEtcdRegistrationManager(client *clientv3.Client, clusterName string, sessionTTL time.Duration) (*EtcdRegistrationManager, error) {
	session, err := concurrency.NewSession(client, concurrency.WithTTL(int(sessionTTL.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd session: %w", err)
	}

	return &EtcdRegistrationManager{
		client:      client,
		session:     session,
		clusterName: clusterName,
		instanceID:  uuid.New(),
	}, nil
}

func (e *EtcdRegistrationManager) clusterPrefix() string {
	return "/" + e.clusterName
}

func (e *EtcdRegistrationManager) writablePath(bookieID string) string {
	return e.clusterPrefix() + "/bookies/available/" + bookieID
}

func (e *EtcdRegistrationManager) readOnlyPath(bookieID string) string {
	return e.clusterPrefix() + "/bookies/available/readonly/" + bookieID
}

func (e *EtcdRegistrationManager) Register(ctx context.Context, bookieID string, readOnly bool) error {
	value, err := json.Marshal(newRegistrationRecord(bookieID, e.instanceID, readOnly))
	if err != nil {
		return fmt.Errorf("failed to marshal registration record: %w", err)
	}

	if readOnly {
		// Swap the markers in one transaction so readers never see
		// the bookie under both.
		txn := e.client.Txn(ctx)
		_, err := txn.Then(
			clientv3.OpPut(e.readOnlyPath(bookieID), string(value), clientv3.WithLease(e.session.Lease())),
			clientv3.OpDelete(e.writablePath(bookieID)),
		).Commit()
		if err != nil {
			return fmt.Errorf("failed to register bookie as read-only in etcd: %w", err)
		}
		return nil
	}

	if _, err := e.client.Put(ctx, e.writablePath(bookieID), string(value), clientv3.WithLease(e.session.Lease())); err != nil {
		return fmt.Errorf("failed to register bookie in etcd: %w", err)
	}

	return nil
}

func (e *EtcdRegistrationManager) Unregister(ctx context.Context, bookieID string, readOnly bool) error {
	path := e.writablePath(bookieID)
	if readOnly {
		path = e.readOnlyPath(bookieID)
	}

	if _, err := e.client.Delete(ctx, path); err != nil {
		return fmt.Errorf("failed to unregister bookie from etcd: %w", err)
	}

	return nil
}

// Close revokes the session lease, dropping this bookie's markers.
func (e *EtcdRegistrationManager) Close() {
	e.session.Close()
}

package main

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"

	"bookied/statemgr"
)

// registrationRecord is the payload stored under a bookie's
// availability marker in the metadata store. The instance ID changes
// on every process start so operators can tell a re-registration from
// a stale entry.
type registrationRecord struct {
	BookieID     string    `json:"bookie_id"`
	InstanceID   uuid.UUID `json:"instance_id"`
	ReadOnly     bool      `json:"read_only"`
	RegisteredAt string    `json:"registered_at"`
}

func newRegistrationRecord(bookieID string, instanceID uuid.UUID, readOnly bool) registrationRecord {
	return registrationRecord{
		BookieID:     bookieID,
		InstanceID:   instanceID,
		ReadOnly:     readOnly,
		RegisteredAt: time.Now().Format(time.RFC3339),
	}
}

// newRegistrationManager builds the metadata store backend selected by
// -store. A nil manager disables registration entirely. The returned
// cleanup func releases the backend's connections and leases.
func newRegistrationManager(ctx context.Context, conf config) (statemgr.RegistrationManager, func(), error) {
	switch conf.store {
	case "none":
		return nil, func() {}, nil

	case "etcd":
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   conf.etcdEndpoints,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to etcd: %w", err)
		}

		rm, err := NewEtcdRegistrationManager(client, conf.clusterName, conf.sessionTTL)
		if err != nil {
			client.Close()
			return nil, nil, err
		}

		cleanup := func() {
			rm.Close()
			client.Close()
		}
		return rm, cleanup, nil

	case "dynamodb":
		awsConf, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		rm := NewDynamoDBRegistrationManager(dynamodb.NewFromConfig(awsConf), conf.clusterName)
		if err := rm.InitTable(ctx); err != nil {
			return nil, nil, err
		}
		return rm, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", conf.store)
	}
}

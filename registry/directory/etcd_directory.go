// etcd-backed Directory storing one key per registered instance under a
// service-scoped prefix, with lease-based TTL expiry and a watch channel
// for live membership changes.
package directory

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/urpc/"

// EtcdDirectory implements Directory using etcd v3 with TTL-leased keys:
// if a registered server crashes without deregistering, its lease
// expires and the entry disappears on its own.
type EtcdDirectory struct {
	client *clientv3.Client
}

// NewEtcdDirectory connects to the given etcd endpoints.
func NewEtcdDirectory(endpoints []string) (*EtcdDirectory, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return &EtcdDirectory{client: c}, nil
}

func serviceKey(serviceName, addr string) string {
	return keyPrefix + serviceName + "/" + addr
}

func servicePrefix(serviceName string) string {
	return keyPrefix + serviceName + "/"
}

// Register puts instance under a TTL lease and starts a background
// keepalive goroutine that renews the lease for as long as the etcd client
// lives. Deregister deletes the key but neither revokes the lease nor
// stops this renewal.
func (d *EtcdDirectory) Register(serviceName string, instance Instance, ttlSeconds int64) error {
	ctx := context.Background()

	lease, err := d.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	if _, err := d.client.Put(ctx, serviceKey(serviceName, instance.Addr), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	ch, err := d.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes the instance's key immediately, ahead of its lease
// expiry.
func (d *EtcdDirectory) Deregister(serviceName, addr string) error {
	_, err := d.client.Delete(context.Background(), serviceKey(serviceName, addr))
	return err
}

// Discover lists all live instances currently registered under
// serviceName.
func (d *EtcdDirectory) Discover(serviceName string) ([]Instance, error) {
	resp, err := d.client.Get(context.Background(), servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst Instance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			continue
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// Watch emits the full instance list for serviceName every time etcd
// reports a change under its key prefix.
func (d *EtcdDirectory) Watch(serviceName string) <-chan []Instance {
	out := make(chan []Instance, 1)
	prefix := servicePrefix(serviceName)

	go func() {
		watchChan := d.client.Watch(context.Background(), prefix, clientv3.WithPrefix())
		for range watchChan {
			instances, err := d.Discover(serviceName)
			if err != nil {
				continue
			}
			out <- instances
		}
	}()

	return out
}

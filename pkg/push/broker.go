package push

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/Smooother/poolheating/pkg/state"
	mqttv2 "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/sirupsen/logrus"
)

const statusTopic = "poolheating/status/+"

// Start runs the embedded broker the vendor gateway pushes device status
// to. Messages land in the cache, stamped as realtime.
func Start(ctx context.Context, wg *sync.WaitGroup, addr string, cache *Cache) (*mqttv2.Server, error) {
	wg.Add(1)
	server := mqttv2.New(&mqttv2.Options{
		InlineClient: true,
	})

	// Allow all connections.
	_ = server.AddHook(new(auth.AllowHook), nil)

	tcp := listeners.NewTCP(listeners.Config{ID: "t1", Address: addr})
	err := server.AddListener(tcp)
	if err != nil {
		return server, err
	}

	err = server.Serve()
	if err != nil {
		return server, err
	}

	err = server.Subscribe(statusTopic, 1, func(cl *mqttv2.Client, sub packets.Subscription, pk packets.Packet) {
		s := state.Status{}
		err := json.Unmarshal(pk.Payload, &s)
		if err != nil {
			logrus.Errorf("push: bad payload on %s: %s", pk.TopicName, err)
			return
		}
		if s.DeviceID == "" {
			parts := strings.Split(pk.TopicName, "/")
			s.DeviceID = parts[len(parts)-1]
		}
		if s.ObservedAt.IsZero() {
			s.ObservedAt = time.Now()
		}
		s.Source = state.SourceRealtime
		s.Online = true
		cache.Set(s)
		logrus.Debugf("push: status for %s setpoint %.1f power %s", s.DeviceID, s.Setpoint, s.Power)
	})
	if err != nil {
		return server, err
	}

	go func() {
		<-ctx.Done()
		server.Close()
		wg.Done()
	}()
	return server, nil
}

package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/evshare/core/device"
	"github.com/kilianp07/evshare/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker     string          `json:"broker"`
	ClientID   string          `json:"client_id"`
	Username   string          `json:"username"`
	Password   string          `json:"password"`
	UseTLS     bool            `json:"use_tls"`
	ClientCert string          `json:"client_cert"`
	ClientKey  string          `json:"client_key"`
	CABundle   string          `json:"ca_bundle"`
	AuthMethod string          `json:"auth_method"`
	QoS        map[string]byte `json:"qos"`
	LWTTopic   string          `json:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload"`
	LWTQoS     byte            `json:"lwt_qos"`
	LWTRetain  bool            `json:"lwt_retain"`
	MaxRetries int             `json:"max_retries"`
	BackoffMS  int             `json:"backoff_ms"`
	TLSConfig  *tls.Config     `json:"-"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// pendingQuery tracks one in-flight battery query. The done flag guards the
// response/timeout race: whichever side swaps it first owns the result slot.
type pendingQuery struct {
	vehicleID string
	createdAt time.Time
	done      atomic.Bool
	ch        chan int
}

// PahoActuator implements device.Actuator over Eclipse Paho. A single
// process-wide subscription to the battery response topic resolves pending
// queries by correlation id.
type PahoActuator struct {
	cli pahoClient
	qos map[string]byte

	mu      sync.Mutex
	pending map[string]*pendingQuery

	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoActuator connects to the MQTT broker and subscribes to the battery
// response topic.
func NewPahoActuator(cfg Config) (*PahoActuator, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_actuator")
	pa := &PahoActuator{
		qos:        cfg.QoS,
		pending:    make(map[string]*pendingQuery),
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if token := c.Subscribe(BatteryResponseTopic, pa.qosFor("response"), pa.onBatteryResponse); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pa.cli = c
	return pa, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (p *PahoActuator) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

func (p *PahoActuator) onBatteryResponse(_ paho.Client, msg paho.Message) {
	var m BatteryResponse
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode battery response: %v", err)
		return
	}
	if m.Level < 0 || m.Level > 100 {
		p.logger.Warnf("battery response for %s out of range: %d", m.VehicleID, m.Level)
		return
	}
	p.mu.Lock()
	pend, ok := p.pending[m.CorrelationID]
	if ok {
		delete(p.pending, m.CorrelationID)
	}
	p.mu.Unlock()
	if !ok {
		p.logger.Debugf("battery response %s arrived late or unknown", m.CorrelationID)
		return
	}
	if pend.done.CompareAndSwap(false, true) {
		pend.ch <- m.Level
		p.logger.Infof("battery response for %s: %d%%", m.VehicleID, m.Level)
	}
}

// SendUnlock publishes an unlock command for the vehicle. Fire and forget:
// success means the bus accepted the message.
func (p *PahoActuator) SendUnlock(vehicleID, rideID string) error {
	return p.sendCommand(CommandUnlock, vehicleID, rideID)
}

// SendLock publishes a lock command for the vehicle.
func (p *PahoActuator) SendLock(vehicleID, rideID string) error {
	return p.sendCommand(CommandLock, vehicleID, rideID)
}

func (p *PahoActuator) sendCommand(command, vehicleID, rideID string) error {
	payload, err := json.Marshal(Command{
		VehicleID: vehicleID,
		Command:   command,
		RideID:    rideID,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	topic := CommandTopic(vehicleID)
	retries := p.maxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := p.backoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	var publishErr error
	for attempt := 0; attempt <= retries; attempt++ {
		token := p.cli.Publish(topic, p.qosFor("command"), false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Infof("sent %s to %s", command, topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		time.Sleep(backoff * time.Duration(1<<attempt))
	}
	return fmt.Errorf("%w: %v", device.ErrTransport, publishErr)
}

// RequestBatteryLevel publishes a correlated battery query and waits for the
// matching response or the timeout, whichever resolves first. Exactly one of
// the two takes effect; a late response is a no-op. A silent or unreachable
// device resolves fail-open: acceptable true with no level.
func (p *PahoActuator) RequestBatteryLevel(ctx context.Context, vehicleID string, timeout time.Duration) (bool, *int, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if p.cli == nil || !p.cli.IsConnected() {
		p.logger.Warnf("battery query for %s skipped: broker not connected", vehicleID)
		return true, nil, nil
	}

	corrID := uuid.NewString()
	pend := &pendingQuery{vehicleID: vehicleID, createdAt: time.Now(), ch: make(chan int, 1)}
	p.mu.Lock()
	p.pending[corrID] = pend
	p.mu.Unlock()

	payload, err := json.Marshal(BatteryRequest{
		VehicleID:     vehicleID,
		CorrelationID: corrID,
		Timestamp:     time.Now().UnixMilli(),
	})
	if err != nil {
		p.unregister(corrID)
		return true, nil, nil
	}
	token := p.cli.Publish(BatteryRequestTopic(vehicleID), p.qosFor("query"), false, payload)
	token.Wait()
	if perr := token.Error(); perr != nil {
		p.unregister(corrID)
		p.logger.Errorf("battery query publish for %s failed: %v", vehicleID, perr)
		return true, nil, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case level := <-pend.ch:
		return level >= device.MinStartLevel, &level, nil
	case <-timer.C:
		return p.expire(corrID, pend)
	case <-ctx.Done():
		return p.expire(corrID, pend)
	}
}

// expire resolves the timeout side of the race. If the response handler won
// in the meantime, its level is already in the slot and wins.
func (p *PahoActuator) expire(corrID string, pend *pendingQuery) (bool, *int, error) {
	if pend.done.CompareAndSwap(false, true) {
		p.unregister(corrID)
		p.logger.Warnf("battery query for %s: %v", pend.vehicleID, device.ErrQueryTimeout)
		return true, nil, nil
	}
	level := <-pend.ch
	return level >= device.MinStartLevel, &level, nil
}

func (p *PahoActuator) unregister(corrID string) {
	p.mu.Lock()
	delete(p.pending, corrID)
	p.mu.Unlock()
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoActuator) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

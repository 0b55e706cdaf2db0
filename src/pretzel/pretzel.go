package pretzel

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"hash/fnv"
	"io/ioutil"
	"os"
	"os/signal"
	"syscall"

	"github.com/pretzelio/pretzel/src/config"
	"github.com/pretzelio/pretzel/src/crypto/keys"
	"github.com/pretzelio/pretzel/src/graph"
	"github.com/pretzelio/pretzel/src/messages"
	"github.com/pretzelio/pretzel/src/net"
	"github.com/pretzelio/pretzel/src/peers"
	"github.com/pretzelio/pretzel/src/service"
	"github.com/pretzelio/pretzel/src/worker"
	"github.com/sirupsen/logrus"
)

// Pretzel is a struct containing the key parts of a pretzel worker. It reads
// the configuration, loads the private key and the worker registry, and
// instantiates the transport, the message store factory and the worker.
type Pretzel struct {
	Config       *config.Config
	Worker       *worker.Worker
	Transport    net.Transport
	StoreFactory messages.StoreFactory
	Peers        *peers.PeerSet
	Service      *service.Service
}

// NewPretzel is a factory method that returns an uninitialised Pretzel
// instance.
func NewPretzel(config *config.Config) *Pretzel {
	engine := &Pretzel{
		Config: config,
	}

	return engine
}

func (p *Pretzel) initPeers() error {
	if p.Peers != nil {
		return nil
	}

	peerStore := peers.NewJSONPeerSet(p.Config.DataDir)

	participants, err := peerStore.PeerSet()
	if err != nil {
		return err
	}

	if participants == nil || participants.Len() < 1 {
		return fmt.Errorf("workers.json should define at least one worker")
	}

	p.Peers = participants

	return nil
}

func (p *Pretzel) initStoreFactory() error {
	resolver := hashResolver(p.Config.Partitions)

	if !p.Config.Store {
		p.StoreFactory = messages.NewInmemStoreFactory(resolver)

		p.Config.Logger().Debug("created new in-mem store factory")

		return nil
	}

	p.Config.Logger().WithField("path", p.Config.DatabaseDir).Debug("Attempting to load or create database")

	factory, err := messages.NewDiskStoreFactory(p.Config.DatabaseDir, resolver)
	if err != nil {
		return err
	}

	p.StoreFactory = factory

	return nil
}

func (p *Pretzel) initTransport() error {
	if p.Config.TLS {
		cert, err := tls.LoadX509KeyPair(p.Config.CertFile(), p.Config.CertKeyFile())
		if err != nil {
			return err
		}

		caCert, err := ioutil.ReadFile(p.Config.CAFile())
		if err != nil {
			return err
		}

		trustedCAs := x509.NewCertPool()
		if !trustedCAs.AppendCertsFromPEM(caCert) {
			return fmt.Errorf("No certificates found in %s", p.Config.CAFile())
		}

		serverName, err := certServerName(cert)
		if err != nil {
			return err
		}

		tlsConfig, err := net.TLSConfig(serverName, []tls.Certificate{cert}, trustedCAs)
		if err != nil {
			return err
		}

		transport, err := net.NewTLSTransport(
			p.Config.BindAddr,
			p.Config.AdvertiseAddr,
			p.Config.MaxPool,
			p.Config.TCPTimeout,
			tlsConfig,
			p.Config.Logger(),
		)
		if err != nil {
			return err
		}

		p.Transport = transport

		return nil
	}

	transport, err := net.NewTCPTransport(
		p.Config.BindAddr,
		p.Config.AdvertiseAddr,
		p.Config.MaxPool,
		p.Config.TCPTimeout,
		p.Config.Logger(),
	)
	if err != nil {
		return err
	}

	p.Transport = transport

	return nil
}

func (p *Pretzel) initKey() error {
	if p.Config.Key == nil {
		simpleKeyfile := keys.NewSimpleKeyfile(p.Config.Keyfile())

		privKey, err := simpleKeyfile.ReadKey()
		if err != nil {
			return fmt.Errorf("Cannot read private key from file (%s): %v", p.Config.Keyfile(), err)
		}

		p.Config.Key = privKey
	}

	return nil
}

func (p *Pretzel) initWorker() error {
	key := p.Config.Key

	workerPub := keys.PublicKeyHex(&key.PublicKey)

	self, ok := p.Peers.ByPubKey[workerPub]
	if !ok {
		return fmt.Errorf("Cannot find self pubkey in workers.json")
	}

	moniker := p.Config.Moniker
	if moniker == "" {
		moniker = self.Moniker
	}

	p.Config.Logger().WithFields(logrus.Fields{
		"workers": p.Peers,
		"id":      self.ID(),
	}).Debug("PARTICIPANTS")

	workerConfig := worker.NewConfig(
		p.Config.JobID,
		p.Config.TaskIndex,
		p.Config.Partitions,
		p.Config.RequestRetries,
		p.Config.SimulateFirstRequestClosed,
		p.Config.Logger().Logger,
	)

	w, err := worker.NewWorker(
		workerConfig,
		worker.NewIdentity(key, moniker),
		p.Peers,
		p.StoreFactory,
		p.Transport,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize worker: %s", err)
	}

	p.Worker = w

	return nil
}

func (p *Pretzel) initService() error {
	if !p.Config.NoService {
		p.Service = service.NewService(p.Config.ServiceAddr, p.Worker, p.Config.Logger())
	}

	return nil
}

// Init initialises the pretzel engine
func (p *Pretzel) Init() error {
	if err := p.initPeers(); err != nil {
		return err
	}

	if err := p.initStoreFactory(); err != nil {
		return err
	}

	if err := p.initTransport(); err != nil {
		return err
	}

	if err := p.initKey(); err != nil {
		return err
	}

	if err := p.initWorker(); err != nil {
		return err
	}

	if err := p.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the worker and, optionally, the HTTP API service. It blocks
// until the worker is shut down.
func (p *Pretzel) Run() {
	if p.Service != nil && p.Config.ServiceAddr != "" {
		go p.Service.Serve()
	}

	//Relay SIGINT to a graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT)

	go func() {
		<-sigCh
		p.Config.Logger().Debug("Reacting to SIGINT - SHUTDOWN")
		p.Worker.Shutdown()
	}()

	p.Worker.Run()
}

// hashResolver returns a PartitionResolver that assigns a vertex to one of
// partitions buckets by the 32-bit FNV-1a hash of its identifier. Every
// worker in a job must run with the same number of partitions for the
// assignment to agree.
func hashResolver(partitions int) messages.PartitionResolver {
	if partitions < 1 {
		partitions = 1
	}

	return func(vertexID graph.VertexID) graph.PartitionID {
		h := fnv.New32a()
		h.Write([]byte(vertexID))
		return graph.PartitionID(h.Sum32() % uint32(partitions))
	}
}

// certServerName extracts the server name that peers verify against from the
// certificate itself. Workers in a job share one certificate, so the name is
// a property of the job rather than of the individual host.
func certServerName(cert tls.Certificate) (string, error) {
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return "", err
	}

	if len(leaf.DNSNames) > 0 {
		return leaf.DNSNames[0], nil
	}

	if leaf.Subject.CommonName != "" {
		return leaf.Subject.CommonName, nil
	}

	return "", fmt.Errorf("Certificate defines neither DNS names nor a common name")
}

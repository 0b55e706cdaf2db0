// Package config defines the configuration for a pretzel worker.
//
// Regardless of how pretzel is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, pretzel relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional configuration
// files:
//
//	priv_key     // a plain text file containing the raw private key (cf. pretzel keygen).
//	workers.json // a JSON file containing the list of workers taking part in the job.
//	cert.pem     // (optional) an x509 certificate for worker-to-worker TLS.
//	cert.key     // (optional) the key matching cert.pem.
//	ca.pem       // (optional) the CA certificate that worker certificates are verified against.
package config

// Package config loads splice pipeline files.
//
// A pipeline file lists readers with the writers and seams attached to them,
// plus runtime tuning, an optional shared NATS connection and the metrics
// endpoint. Files may be JSON or YAML; the decoder is picked by extension.
//
//	runtime:
//	  workers: 4
//	  read_size: 16384
//	metrics:
//	  port: 9090
//	readers:
//	  - uri: udp://239.1.1.1:5000
//	    writers: [capture.ts]
//	    seams:
//	      - kind: ratelimit
//	        args: {bytes_per_second: "1048576"}
//	        writers: [udp://10.0.0.2:6000]
//
// # Layers and overrides
//
// Loader merges files over Default key by key, later layers winning. Lists
// such as readers are replaced as a whole. After the files, SPLICE_METRICS_PORT,
// SPLICE_WORKERS, SPLICE_QUEUE_SIZE and SPLICE_NATS_URL override the result.
//
//	loader := config.NewLoader()
//	loader.AddLayer("base.yaml")
//	loader.AddLayer("site.yaml")
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
//
// Config files are read with a size limit, JSON nesting depth is bounded and
// relative paths may not escape the working directory.
//
// # Validation
//
// Validate reports invalid-class errors (errors.IsConfiguration) for bad
// tuning values and for endpoint URIs pipeline.ParseEndpoint rejects, so a
// broken file is caught before anything is started.
package config

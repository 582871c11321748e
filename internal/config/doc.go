// Package config loads getserve.json, the file the getserve command reads
// its server settings from.
//
// Every field is optional. Missing fields take the defaults of the server
// packages: port 9001, backlog 5, capacity 8, IPv6-then-IPv4 binding, and
// files served from ./public.
//
// # Configuration File Structure
//
//	{
//	  "host": "",
//	  "port": 9001,
//	  "backlog": 5,
//	  "capacity": 8,
//	  "familyOrder": ["ipv6", "ipv4"],
//	  "root": "public",
//	  "index": "index.html",
//	  "keepAlive": true,
//	  "maxRequestBytes": 65536,
//	  "idleTimeout": "30s",
//	  "shutdownTimeout": "30s",
//	  "admin": {
//	    "address": "127.0.0.1:9090",
//	    "statsInterval": "1s"
//	  },
//	  "s3": {
//	    "bucket": "my-files",
//	    "region": "us-east-1"
//	  },
//	  "log": {"level": "info", "format": "text"}
//	}
//
// Syntax and type errors are reported as E120 with the line and column of
// the problem.
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    errors.PrintError(err)
//	    os.Exit(1)
//	}
//	sc, err := cfg.ServerConfig()
package config

// Package config loads the chatdctl configuration.
//
// The configuration is stored in chatd.json. It names the user the tool
// acts for, the shard servers and the chats to follow on each shard.
// This package handles loading, saving, and validating it.
//
// # Configuration File Structure
//
//	{
//	  "user": "AAAAAAAAAAE",
//	  "shards": [
//	    {"shard": 0, "url": "wss://shard0.example.com/chatd"}
//	  ],
//	  "chats": [
//	    {"id": "AAAAAAAAAAo", "shard": 0}
//	  ],
//	  "client": {
//	    "reconnectDelayInitial": "1s",
//	    "reconnectDelayMax": "1m",
//	    "keepaliveTimeout": "90s",
//	    "initialHistory": 32
//	  },
//	  "log": {"level": "info", "format": "text"},
//	  "metrics": {"addr": ":9090"}
//	}
//
// Durations are Go duration strings. Client settings left out take the
// chatd defaults.
package config

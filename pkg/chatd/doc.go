// Package chatd is the client engine of the chatd chat history service.
//
// A Client keeps a local, index-addressed buffer of every joined chat in
// sync with the chat servers. Chats are assigned to shards; all chats of
// a shard share one Connection, which reconnects with exponential
// backoff and replays the state the server lost when it comes back.
//
// # Threading
//
// Client, its Connections and their Messages buffers are owned by a
// single Loop. Socket reads, dial results and timers are posted to the
// loop, so no state is ever touched concurrently:
//
//	client := chatd.NewClient(userID,
//	    chatd.WithLogger(logger),
//	    chatd.WithListener(listener),
//	)
//	go client.Run(ctx)
//
//	client.Loop().Call(ctx, func() {
//	    client.Join(chatID, 0, "wss://shard0.example.com/chatd")
//	    client.Connect()
//	})
//
// Listener callbacks run on the loop and may call back into the client.
//
// # Message Buffer
//
// Messages are numbered by a signed index. History grows the buffer
// downwards and new messages grow it upwards, so an index never changes
// once assigned. Submitted messages carry a transaction id until the
// server confirms them with their permanent id. Transaction ids carry
// protocol.TxIDFlag, which server ids never do.
//
// # Reconnection
//
// When a shard connection opens, each of its chats is rejoined in order:
// JOIN, then RANGE (or HIST for an empty buffer), then every unconfirmed
// message and every unconfirmed edit. Commands issued while offline are
// queued and flushed after the rejoin. StateConnected is reported to
// listeners only after that, so commands sent from the callback follow
// the rejoin. Dials carry no deadline of their own; the transport bounds
// the handshake.
//
// # Observability
//
// Each Client registers Prometheus metrics under the "chatd" namespace
// on the registry given with WithRegistry, and traces reconnect and dial
// spans through the OpenTelemetry provider given with WithTracerProvider.
package chatd

// ABOUTME: Network audio sink package
// ABOUTME: Receives streams from remote outputs and plays them locally
// Package sink implements the receiving end of the remote output backend.
//
// A Server accepts one stream at a time over WebSocket, converts the wire
// audio (PCM or Opus) to the local device format and plays it through an
// audioout.Output in pull mode. Output state is reported back to the client
// as sink/state messages.
//
// Example:
//
//	srv := sink.New(sink.Config{
//	    Name:       "Living Room",
//	    Addr:       ":8928",
//	    EnableMDNS: true,
//	})
//	err := srv.Run(ctx)
package sink

// Package sse decodes server-sent event streams into payload deltas.
//
// # Wire Format
//
// Frames are separated by a blank line ("\n\n"). A frame whose text begins
// with the "data:" marker carries one delta: everything after the marker,
// verbatim. Frames without the marker (comments, keep-alives) are dropped.
//
// # Usage
//
// The lazy form reads directly from a response body:
//
//	for delta, err := range sse.Deltas(resp.Body) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(delta)
//	}
//
// Decoder.Feed is the chunk-level primitive for callers that manage their
// own reads. A frame left unterminated when the stream ends is discarded.
package sse

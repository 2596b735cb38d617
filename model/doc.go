// Package model defines the provider-agnostic completion contract: the
// outbound Request, the normalized streaming Chunk event, the Stream
// interface produced by provider adapters, and the Decoder that assembles a
// stream into a finished message.
//
// Provider-specific chunk formats are a leaky abstraction; each adapter
// (model/openai, model/anthropic) normalizes its vendor's events into Chunk
// so the decoder never branches per provider.
package model

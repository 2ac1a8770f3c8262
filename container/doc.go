// Package container decodes per-frame payloads carried on a track's data
// stream: the "legacy" VarInt-timestamp-prefixed form, and the "cmaf" form
// whose timestamps and sample boundaries are derived from ISO-BMFF
// moof/mdat boxes.
package container

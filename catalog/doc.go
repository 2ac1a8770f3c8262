// Package catalog decodes and validates a broadcast's catalog: the JSON
// document describing its video and audio renditions, codec
// configuration, and container framing.
package catalog

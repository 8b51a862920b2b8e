// Package template turns notification categories into channel-ready text.
//
// Templates live in a YAML catalog keyed by category and channel. The
// Renderer compiles the whole catalog at construction and rejects broken
// template syntax, missing mail subjects, and unknown categories up front.
// At render time a missing context variable is an error rather than a
// silent blank, and sms bodies are checked against a length limit.
//
//	catalog, _ := template.DefaultCatalog()
//	renderer, err := template.NewRenderer(catalog)
//	out, err := renderer.Render(notification.CategoryOrderCreated, notification.ChannelMail, ctx)
package template

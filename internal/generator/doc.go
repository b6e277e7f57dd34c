// Package generator bridges natural-language requests and the deployment
// layer. It parses free-form input into a structured intent, builds a
// workflow from the recognized capability modules, and hands the result to
// the deployment transaction manager.
package generator

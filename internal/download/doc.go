// Package download fetches metadata payloads and mod artifacts over HTTP.
//
// Artifacts are streamed into a staging directory, never into an
// environment, so a cancelled or failed transfer leaves nothing behind in
// the install target. Links that only resolve inside a browser are handled
// by a BrowserSession, which walks the landing page and captures the first
// response that a browser would hand to its download manager.
package download

// Package httpclient builds and sends chat-completion requests.
//
// Use [NewRequestBuilder] to prepare the fixed parts of every request from
// the API configuration, then call [RequestBuilder.Build] with the message
// selected for that request:
//
//	builder, err := httpclient.NewRequestBuilder(cfg.API, cfg.TargetURL(), provider)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx, msg)
//
// The [NewClient] function creates an HTTP client tuned for load testing with
// generous connection reuse:
//
//	client := httpclient.NewClient(cfg.Timeout)
//	resp, err := client.Do(req)
package httpclient

// Package redisstream publishes crontimer notifications to a Redis stream.
//
// Each notification becomes one XADD entry with the fields timer, event_id,
// expression, due, tick and payload. Times are RFC 3339 with nanoseconds in UTC.
// The payload is encoded by the configured Encoder, fmt.Sprint by default.
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	pub, err := redisstream.New(redisstream.Config[string]{
//		Client: rdb,
//		Stream: "crontimer:notifications",
//		MaxLen: 10000,
//	})
//	if err != nil {
//		return err
//	}
//	timer.Subscribe(pub.Handle)
//
// Consumers usually read the stream through a consumer group; EnsureGroup
// creates one, and the stream with it, if it does not exist yet.
package redisstream

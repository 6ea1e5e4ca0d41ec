// Package itemmatch embeds the lost-and-found matching engine in a Go program.
//
// Reports are kept in memory. Images are turned into descriptors by an external extractor
// service; without one, matching runs on metadata only.
//
//	client, _ := itemmatch.New(ctx,
//	    itemmatch.WithExtractor("http://localhost:5001"),
//	    itemmatch.WithRedisCache("localhost:6379", "", 24*time.Hour),
//	)
//	defer client.Close()
//
//	_, _ = client.Store(ctx, itemmatch.Item{Type: itemmatch.Found, Name: "iPhone 12", Image: jpeg})
//	res, _ := client.Match(ctx, itemmatch.Query{Type: itemmatch.Lost, Name: "iPhone", Image: photo})
//	fmt.Println(res.NextStep, res.BestScore)
package itemmatch

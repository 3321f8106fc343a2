// Package recipeshare provides a peer-to-peer recipe sharing node.
//
// # Overview
//
// Each node keeps its own recipes in a local file and shares the public ones
// with peers on the same network. Peers find each other with mDNS and talk
// over a small UDP gossip overlay on a single topic.
//
// # Data model
//
// A Recipe has a numeric id, a name, ingredients, instructions and a
// visibility flag. New recipes are private; publishing one makes it visible
// to peers and it stays public.
//
// # Networking
//
// A node asks its peers for their public recipes with a list request, either
// broadcast to everyone or directed at one peer id. Peers answer on the same
// topic with a list response addressed to the requester. Responses are pushed
// to every open command connection.
//
// # Commands
//
// Local clients connect to the command address over a websocket and send one
// command per text message:
//
//	ls r all                      list local public recipes and ask all peers
//	ls r <peer>                   ask one peer for its public recipes
//	ls p                          list known peers
//	publish r <id>                make a recipe public
//	create r <name>|<ingr>|<inst> create a private recipe
//	quit                          close the connection
//
// Every command gets exactly one JSON reply.
//
// # Storage
//
// With a store path the record list lives in one file that is replaced
// atomically on every change. The default encoding is JSON; GobCodec is an
// alternative. Without a store path records are kept in memory.
//
// Example
//
//	node, err := recipeshare.New(
//		recipeshare.WithStorePath("recipes.json"),
//		recipeshare.WithCommandAddr("127.0.0.1:9000"),
//	)
//	if err != nil {
//		// handle error
//	}
//	defer node.Close(context.Background())
//	_ = node.Run(ctx)
package recipeshare

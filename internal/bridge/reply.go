package bridge

import "github.com/DobryySoul/recipeshare/internal/recipe"

const (
	msgCreated         = "Recipe created"
	msgPublished       = "Recipe published"
	msgListRequestSent = "List request sent"
	msgBye             = "Bye"

	msgInvalidCommand = "Invalid command"
	msgNotFound       = "Recipe not found"
	msgStorageFailure = "Storage failure"
	msgNetworkFailure = "Network failure"
	msgMalformed      = "Malformed command: "
)

// Status is a success reply.
type Status struct {
	Status string `json:"status"`
}

// Failure is an error reply.
type Failure struct {
	Error string `json:"error"`
}

// PeerList answers "ls p".
type PeerList struct {
	Type  string   `json:"type"`
	Peers []string `json:"peers"`
}

// RemoteRecipes is pushed to every open connection when a peer answers one of
// our list requests.
type RemoteRecipes struct {
	Type    string          `json:"type"`
	Peer    string          `json:"peer"`
	Recipes []recipe.Record `json:"recipes"`
}

func NewRemoteRecipes(peer string, records []recipe.Record) RemoteRecipes {
	return RemoteRecipes{Type: "recipes", Peer: peer, Recipes: recipe.Clone(records)}
}

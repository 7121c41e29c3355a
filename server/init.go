package server

import (
	"log"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/graphcompose/fedplan/gateway"
)

const exampleSchemaFile = "schema/example.graphql"

const exampleSchema = `type Query {
  hello: String!
}
`

// Init scaffolds a starter gateway.yaml and an example subgraph schema file
// in the current directory, so "federation-gateway serve" has something to
// load on a first run.
func Init() {
	if _, err := os.Stat("gateway.yaml"); err == nil {
		log.Fatalf("gateway.yaml already exists in the current directory")
	}

	settings := gateway.GatewayOption{
		Endpoint:                    "/graphql",
		ServiceName:                 "federation-gateway",
		Port:                        4000,
		TimeoutDuration:             "5s",
		EnableHangOverRequestHeader: true,
		Services: []gateway.GatewayService{
			{
				Name:        "example",
				Host:        "http://localhost:4001/graphql",
				SchemaFiles: []string{exampleSchemaFile},
			},
		},
	}

	b, err := yaml.Marshal(settings)
	if err != nil {
		log.Fatalf("failed to marshal default gateway settings: %v", err)
	}

	if err := os.WriteFile("gateway.yaml", b, 0o644); err != nil {
		log.Fatalf("failed to write gateway.yaml: %v", err)
	}

	if err := os.MkdirAll("schema", 0o755); err != nil {
		log.Fatalf("failed to create schema directory: %v", err)
	}

	if err := os.WriteFile(exampleSchemaFile, []byte(exampleSchema), 0o644); err != nil {
		log.Fatalf("failed to write example schema: %v", err)
	}

	log.Println("wrote gateway.yaml and schema/example.graphql")
}

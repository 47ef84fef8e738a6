// generate-schema writes the JSON schema of the DittoSite configuration file,
// for editor completion and validation of config.yaml.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/spf13/pflag"

	"github.com/marmos91/dittosite/pkg/config"
)

func main() {
	output := pflag.StringP("output", "o", "config.schema.json", `output file ("-" for stdout)`)
	pflag.Parse()

	if err := run(*output); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(output string) error {
	// Property names are the keys written by "dittosite init"
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "DittoSite Configuration"
	schema.Description = "Configuration file of the DittoSite server (see dittosite init)"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	data = append(data, '\n')

	if output == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	fmt.Fprintf(os.Stderr, "JSON schema written to %s\n", output)
	return nil
}

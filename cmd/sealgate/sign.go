package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aretw0/sealgate/pkg/auth"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// envSignSecret supplies the secret non-interactively.
const envSignSecret = "SEALGATE_SIGN_SECRET"

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Compute authentication headers for a request",
	Long: `Prints the X-Authorization-* headers a client sends for the given request.
The signing secret is read from $SEALGATE_SIGN_SECRET, or prompted for without echo.`,
	Example: `  sealgate sign --service-uuid a7fd7728-... --method POST --uri /hashcodecontainers --body body.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		serviceUUID, _ := cmd.Flags().GetString("service-uuid")
		method, _ := cmd.Flags().GetString("method")
		uri, _ := cmd.Flags().GetString("uri")
		bodyPath, _ := cmd.Flags().GetString("body")
		alg, _ := cmd.Flags().GetString("algorithm")
		curl, _ := cmd.Flags().GetBool("curl")

		if _, err := auth.ParseAlgorithm(alg); err != nil {
			return err
		}

		var body []byte
		if bodyPath != "" {
			data, err := os.ReadFile(bodyPath)
			if err != nil {
				return fmt.Errorf("failed to read body: %w", err)
			}
			body = data
		}

		secret, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		headers, err := signHeaders(serviceUUID, secret, auth.Algorithm(alg), method, uri, body, time.Now())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, h := range headers {
			if curl {
				fmt.Fprintf(out, "-H '%s: %s' ", h[0], h[1])
				continue
			}
			fmt.Fprintf(out, "%s: %s\n", h[0], h[1])
		}
		if curl {
			fmt.Fprintln(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.Flags().String("service-uuid", "", "Service UUID the request is signed as")
	signCmd.Flags().StringP("method", "X", "GET", "HTTP method")
	signCmd.Flags().String("uri", "", "Request URI including the query string")
	signCmd.Flags().String("body", "", "File holding the exact request body")
	signCmd.Flags().String("algorithm", string(auth.DefaultAlgorithm), "HmacSHA256, HmacSHA384 or HmacSHA512")
	signCmd.Flags().Bool("curl", false, "Print headers as curl -H arguments")
	_ = signCmd.MarkFlagRequired("service-uuid")
	_ = signCmd.MarkFlagRequired("uri")
}

// signHeaders returns the header name/value pairs in wire order.
func signHeaders(serviceUUID string, secret []byte, alg auth.Algorithm, method, uri string, body []byte, now time.Time) ([][2]string, error) {
	if serviceUUID == "" || uri == "" {
		return nil, errors.New("service uuid and uri are required")
	}
	if len(secret) == 0 {
		return nil, errors.New("empty signing secret")
	}
	if alg == "" {
		alg = auth.DefaultAlgorithm
	}
	req := auth.SignedRequest{
		ServiceUUID: serviceUUID,
		Timestamp:   auth.FormatTimestamp(now),
		Algorithm:   alg,
		Method:      strings.ToUpper(method),
		URI:         uri,
		Payload:     body,
	}
	return [][2]string{
		{auth.HeaderServiceUUID, req.ServiceUUID},
		{auth.HeaderTimestamp, req.Timestamp},
		{auth.HeaderAlgorithm, string(alg)},
		{auth.HeaderSignature, auth.Sign(secret, req)},
	}, nil
}

// readSecret prefers the environment, then a no-echo prompt on a terminal,
// then the first line of in.
func readSecret(in io.Reader, prompt io.Writer) ([]byte, error) {
	if s, ok := os.LookupEnv(envSignSecret); ok {
		return []byte(s), nil
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Signing secret: ")
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return nil, fmt.Errorf("failed to read secret: %w", err)
		}
		return secret, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

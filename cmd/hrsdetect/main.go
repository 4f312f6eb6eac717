// Command hrsdetect is a thin CLI wrapper around internal/scan: it parses
// flags, builds a Target/ScanOptions/Catalogue, runs the scan, and prints
// findings as JSON. It holds no detection logic of its own.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/vipinbihari/hrs-detector/internal/detect"
	"github.com/vipinbihari/hrs-detector/internal/hrserr"
	"github.com/vipinbihari/hrs-detector/internal/hrsconst"
	"github.com/vipinbihari/hrs-detector/internal/mutation"
	"github.com/vipinbihari/hrs-detector/internal/scan"
	"github.com/vipinbihari/hrs-detector/internal/wire"
)

var classNames = map[string]detect.Class{
	"cl.te": detect.ClassCLTE,
	"te.cl": detect.ClassTECL,
	"h2.te": detect.ClassH2TE,
	"h2.cl": detect.ClassH2CL,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("hrsdetect", flag.ContinueOnError)
	host := fs.String("host", "", "target host")
	port := fs.Int("port", 443, "target port")
	useTLS := fs.Bool("tls", true, "connect over TLS")
	path := fs.String("path", "/", "request path")
	classesFlag := fs.String("classes", "cl.te,te.cl,h2.te,h2.cl", "comma-separated desync classes to probe")
	mutationsFile := fs.String("mutations", "", "path to a JSON mutation catalogue (default built-in catalogue)")
	timeout := fs.Duration("timeout", hrsconst.DefaultReadTimeout, "per-probe read timeout")
	connectTimeout := fs.Duration("connect-timeout", hrsconst.DefaultConnectTimeout, "per-probe connect timeout")
	exitFirst := fs.Bool("exit-first", false, "stop scanning after the first finding")
	verify := fs.Bool("verify-certs", false, "verify TLS certificates (default off, matching a security-scanning client)")
	verbose := fs.Bool("v", false, "write a progress trace to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if !*verbose {
		logger.SetOutput(nilWriter{})
	}

	if *host == "" {
		fmt.Fprintln(os.Stderr, hrserr.NewConfigError("-host is required"))
		return 2
	}

	classes, err := parseClasses(*classesFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cat := mutation.Default()
	if *mutationsFile != "" {
		loaded, err := mutation.LoadFile(*mutationsFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, hrserr.NewConfigError("loading mutation file: "+err.Error()))
			return 2
		}
		cat = loaded
	}

	target := wire.Target{Host: *host, Port: *port, TLS: *useTLS, Path: *path}
	opts := detect.ScanOptions{
		Timeout:            *timeout,
		ConnectTimeout:     *connectTimeout,
		ExitFirst:          *exitFirst,
		VerifyCertificates: *verify,
	}

	logger.Printf("scanning %s:%d over classes %v", target.Host, target.Port, classes)
	result := scan.Run(context.Background(), target, classes, cat, opts, detect.SystemClock{})
	for _, e := range result.Errors {
		logger.Printf("probe error [%s/%s]: %v", e.Class, e.MutationDescription, e.Err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Findings); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if len(result.Findings) > 0 {
		return 1
	}
	return 0
}

func parseClasses(raw string) ([]detect.Class, error) {
	var out []detect.Class
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		c, ok := classNames[name]
		if !ok {
			return nil, hrserr.NewConfigError("unknown class: " + name)
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, hrserr.NewConfigError("no classes requested")
	}
	return out, nil
}

type nilWriter struct{}

func (nilWriter) Write(p []byte) (int, error) { return len(p), nil }

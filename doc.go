// Package fxp coordinates server-to-server FTP file transfers (FXP),
// optionally protected by TLS, without routing file bytes through the
// local process.
//
// # Overview
//
// An FXP transfer needs two independently authenticated control
// connections. One server is told to listen for the data connection
// (PASV or CPSV), the other to connect to it (PORT); the destination is
// prepared with STOR before the source is started with RETR, and both
// sides are then awaited until they report 226. This package provides:
//
//   - Session: one FTP control connection with serialized command
//     traffic, explicit TLS upgrade (AUTH TLS/SSL), and direct
//     Store/Retrieve transfers.
//   - SecureControl: the TLS lifecycle of a session - PROT levels,
//     CCC downgrade, SSCN handshake-role toggling, CPSV.
//   - Coordinator: the FXP orchestration itself, with failures
//     attributed to the source or destination server.
//
// # Basic Usage
//
//	src, err := fxp.Dial("alpha.example.com:21")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer src.Quit()
//	if err := src.Secure().Negotiate(fxp.AuthTLS, "user", "secret"); err != nil {
//	    log.Fatal(err)
//	}
//
//	dst, err := fxp.Dial("beta.example.com:21")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dst.Quit()
//	if err := dst.Secure().Negotiate(fxp.AuthTLS, "user", "secret"); err != nil {
//	    log.Fatal(err)
//	}
//
//	coord := fxp.NewCoordinator(src, dst)
//	result, err := coord.TransferCPSV(ctx, "/outgoing/file.bin", "/incoming/file.bin")
//	if err != nil {
//	    var te *fxp.TransferError
//	    if errors.As(err, &te) && te.Side == fxp.SideDestination {
//	        // partial file may exist on the destination
//	    }
//	    log.Fatal(err)
//	}
//	_ = result
//
// # Negotiation Variants
//
// Two TLS-capable negotiation variants exist and must not be mixed on
// the same pair: CPSV (TransferCPSV), where the listening server is told
// not to initiate the TLS handshake itself, and SSCN (TransferSSCN),
// where the handshake roles are assigned explicitly per server. A
// Coordinator latches onto whichever variant is used first.
//
// # Security
//
// Certificate verification is on by default. WithInsecureTLS opts into
// permissive verification for servers with self-signed certificates.
package fxp

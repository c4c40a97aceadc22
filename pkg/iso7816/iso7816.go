/*
Package iso7816 implements the APDU layer shared by every smart card endpoint: command and
response encoding according to ISO/IEC 7816-3/4, status word analysis, and a Client that drives a
raw Transmitter and records every exchange in a Trace.

# Exchanges

A terminal and a card talk in strict alternation: the terminal sends a command APDU (a 4 byte
header with optional Lc, data and Le) and the card answers with a response APDU (optional data
followed by SW1 SW2). Two status families are procedural rather than final:
  - 61XX: XX more response bytes are waiting.
  - 6CXX: the command must be repeated with Le = XX.

The Client resolves 61XX and 6CXX itself, so callers only ever look at the final transaction of
a Trace. Application-specific meaning of the other status words (Calypso PO and SAM tables) lives
in the calypso package.

# Usage Example

	client := iso7816.NewClient(card)
	cls := iso7816.MustClass(iso7816.ClaISO)

	trace, err := client.Send(iso7816.SelectByAID(cls, aid))
	if err != nil {
	    log.Fatal(err)
	}
	if !trace.IsSuccess() {
	    log.Printf("select failed: %s", trace.Last().Response.Status.Verbose())
	}
*/
package iso7816

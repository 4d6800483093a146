package ofx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bankStatement = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240101120000
<LANGUAGE>ENG
<FI>
<ORG>TESTBANK
<FID>12345
</FI>
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>9876543210
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101000000
<DTEND>20240131235959
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240105120000
<TRNAMT>-50.00
<FITID>TXN001
<NAME>Test Transaction 1
<MEMO>Coffee Shop
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240115120000
<TRNAMT>1000.10
<FITID>TXN002
<NAME>Paycheck
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>2000.00
<DTASOF>20240131235959
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func TestCanParse(t *testing.T) {
	p := NewParser()
	assert.True(t, p.CanParse("stmt.ofx", "", []byte("OFXHEADER:100\nDATA:OFXSGML\n")))
	assert.True(t, p.CanParse("download", "", []byte(`<?xml version="1.0"?><?OFX OFXHEADER="200"?>`)))
	assert.True(t, p.CanParse("stmt.qfx", "", []byte("<OFX><SIGNONMSGSRSV1>")))
	assert.False(t, p.CanParse("stmt.ofx", "", []byte("This is not OFX content")))
	assert.False(t, p.CanParse("stmt.csv", "", []byte("Date,Amount\n")))
}

func TestParseBankStatement(t *testing.T) {
	lines, err := NewParser().Parse(context.Background(), []byte(bankStatement))
	require.NoError(t, err)
	require.Len(t, lines, 2)

	first := lines[0]
	assert.True(t, first.Valid())
	assert.Equal(t, 1, first.RowNumber)
	assert.Equal(t, "2024-01-05", first.Fields.BookingDate)
	assert.Equal(t, "-50", first.Fields.Amount.String())
	assert.Equal(t, "Test Transaction 1 Coffee Shop", first.Fields.Description)
	assert.Equal(t, "USD", first.Fields.Currency)
	assert.Equal(t, "TXN001", first.Raw["fitid"])

	assert.Equal(t, "1000.1", lines[1].Fields.Amount.String())
	assert.Equal(t, "Paycheck", lines[1].Fields.Description)
	assert.Equal(t, 2, lines[1].RowNumber)
}

func TestParseMalformed(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), []byte("OFXHEADER:100\n<OFX><BROKEN"))
	assert.Error(t, err)
}

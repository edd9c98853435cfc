package fabric

import (
	"encoding/json"

	"github.com/google/uuid"

	"shikkha/internal/certificate"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
)

// ReceiptFromEvent decodes the chaincode event of a committed transaction so
// the identity can be recovered from a Fabric block event. The event must
// belong to txID and be named after the receipt's first effect.
func ReceiptFromEvent(txID, name string, payload []byte) (certificate.Receipt, error) {
	var receipt certificate.Receipt
	if err := json.Unmarshal(payload, &receipt); err != nil {
		return certificate.Receipt{}, dErrors.Wrap(err, dErrors.CodeDecode, "chaincode event payload is not a receipt")
	}
	if want := ledgerTxID(txID); receipt.TxID != want {
		return certificate.Receipt{}, dErrors.New(dErrors.CodeDecode, "chaincode event belongs to another transaction")
	}
	if len(receipt.Effects) == 0 {
		return certificate.Receipt{}, dErrors.New(dErrors.CodeEffectNotFound, "chaincode event carries no effects")
	}
	if name != string(receipt.Effects[0].Kind) {
		return certificate.Receipt{}, dErrors.New(dErrors.CodeDecode, "chaincode event name does not match its effect")
	}
	return receipt, nil
}

func ledgerTxID(fabricTxID string) id.TxID {
	return id.TxID(uuid.NewSHA1(txNamespace, []byte(fabricTxID)))
}

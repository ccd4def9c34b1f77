package chain

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/independant-validator/internal/model"
	pkgeth "github.com/certen/independant-validator/pkg/ethereum"
)

// storeABI is the minimal OpenStore contract surface this validator calls.
// Only the methods the validator state machine exercises are declared here;
// the rest of the deployed contract's surface (reads served to end users,
// for instance) is out of scope.
const storeABI = `[
 {"name":"lastState","type":"function","stateMutability":"view","inputs":[{"name":"validator","type":"address"}],"outputs":[
   {"name":"blockNumber","type":"uint64"},
   {"name":"nextRequestId","type":"uint64"},
   {"name":"nextProposalRequestId","type":"uint64"},
   {"name":"nextProposalBlockId","type":"uint64"},
   {"name":"nextFinalBlockId","type":"uint64"},
   {"name":"assignedValidator","type":"address"},
   {"name":"assignedBlockId","type":"uint64"}
 ]},
 {"name":"nextRequestId","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint64"}]},
 {"name":"request","type":"function","stateMutability":"view","inputs":[{"name":"requestId","type":"uint64"}],"outputs":[
   {"name":"requestType","type":"uint8"},
   {"name":"target","type":"address"},
   {"name":"buildVersion","type":"uint64"},
   {"name":"artifactRefId","type":"string"},
   {"name":"protocolId","type":"uint8"},
   {"name":"ownerVersion","type":"uint64"},
   {"name":"trackId","type":"uint8"}
 ]},
 {"name":"blockInfo","type":"function","stateMutability":"view","inputs":[{"name":"blockId","type":"uint64"},{"name":"proposer","type":"address"}],"outputs":[
   {"name":"refId","type":"string"},
   {"name":"protocolId","type":"uint8"},
   {"name":"blockHash","type":"bytes32"},
   {"name":"fromRequestId","type":"uint64"},
   {"name":"toRequestId","type":"uint64"},
   {"name":"result","type":"bytes32"}
 ]},
 {"name":"blockProposers","type":"function","stateMutability":"view","inputs":[{"name":"blockId","type":"uint64"}],"outputs":[{"type":"address[]"}]},
 {"name":"blockState","type":"function","stateMutability":"view","inputs":[{"name":"blockId","type":"uint64"},{"name":"validator","type":"address"}],"outputs":[{"type":"uint8"}]},
 {"name":"nextBlockIdToFinalize","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint64"}]},
 {"name":"isFinalizable","type":"function","stateMutability":"view","inputs":[{"name":"blockId","type":"uint64"}],"outputs":[{"type":"bool"}]},
 {"name":"proposeBlock","type":"function","stateMutability":"nonpayable","inputs":[
   {"name":"blockId","type":"uint64"},{"name":"refId","type":"string"},{"name":"protocolId","type":"uint8"},
   {"name":"blockHash","type":"bytes32"},{"name":"fromRequestId","type":"uint64"},{"name":"toRequestId","type":"uint64"},
   {"name":"result","type":"bytes32"}],"outputs":[]},
 {"name":"vote","type":"function","stateMutability":"nonpayable","inputs":[
   {"name":"blockId","type":"uint64"},{"name":"validator","type":"address"},{"name":"unavailableMask","type":"bytes16"}],"outputs":[]},
 {"name":"finalize","type":"function","stateMutability":"nonpayable","inputs":[{"name":"blockId","type":"uint64"}],"outputs":[]},
 {"name":"assignValidator","type":"function","stateMutability":"nonpayable","inputs":[{"name":"blockId","type":"uint64"}],"outputs":[]},
 {"name":"unassignValidator","type":"function","stateMutability":"nonpayable","inputs":[{"name":"blockId","type":"uint64"}],"outputs":[]},
 {"name":"registerValidator","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]},
 {"name":"unregisterValidator","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]},
 {"name":"isRegistered","type":"function","stateMutability":"view","inputs":[{"name":"validator","type":"address"}],"outputs":[{"type":"bool"}]},
 {"name":"nextAssignBlockId","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint64"}]},
 {"name":"nextBlockIdFor","type":"function","stateMutability":"view","inputs":[{"name":"validator","type":"address"}],"outputs":[{"type":"uint64"}]},
 {"name":"validatorAssignStatus","type":"function","stateMutability":"view","inputs":[{"name":"validator","type":"address"},{"name":"version","type":"uint64"}],"outputs":[{"type":"uint8"}]},
 {"name":"minAvailableVersion","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint64"}]},
 {"name":"recommendedStakeAmount","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
 {"name":"totalBalance","type":"function","stateMutability":"view","inputs":[{"name":"validator","type":"address"}],"outputs":[{"type":"uint256"}]},
 {"name":"topUp","type":"function","stateMutability":"payable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
 {"name":"getArtifact","type":"function","stateMutability":"view","inputs":[{"name":"app","type":"address"},{"name":"buildVersion","type":"uint64"}],"outputs":[
   {"name":"refId","type":"string"},{"name":"protocolId","type":"uint8"},{"name":"checksum","type":"string"}]},
 {"name":"getOwnerData","type":"function","stateMutability":"view","inputs":[{"name":"app","type":"address"},{"name":"ownerVersion","type":"uint64"}],"outputs":[
   {"name":"certs","type":"bytes[]"},{"name":"proofs","type":"bytes[]"}]}
]`

// EthAdapter implements Adapter against a deployed OpenStore contract over
// go-ethereum, built on top of the shared low-level transaction helper.
type EthAdapter struct {
	client        *pkgeth.Client
	storeAddress  common.Address
	privateKeyHex string
	gasLimit      uint64
}

// NewEthAdapter connects to nodeURL and returns an adapter bound to the
// given store contract, signing outgoing transactions with privateKeyHex.
func NewEthAdapter(nodeURL string, chainID int64, storeAddress common.Address, privateKeyHex string) (*EthAdapter, error) {
	client, err := pkgeth.NewClient(nodeURL, chainID)
	if err != nil {
		return nil, fmt.Errorf("chain: connect: %w", err)
	}
	return &EthAdapter{client: client, storeAddress: storeAddress, privateKeyHex: privateKeyHex, gasLimit: 500_000}, nil
}

func (a *EthAdapter) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	return a.client.CallContract(ctx, a.storeAddress, storeABI, method, params...)
}

func (a *EthAdapter) send(ctx context.Context, method string, params ...interface{}) error {
	_, err := a.client.SendContractTransactionWithRetry(ctx, a.storeAddress, storeABI, a.privateKeyHex, method, a.gasLimit, 3, params...)
	return err
}

func (a *EthAdapter) GetLastState(ctx context.Context, validator common.Address) (*model.LastState, error) {
	out, err := a.call(ctx, "lastState", validator)
	if err != nil {
		return nil, fmt.Errorf("chain: lastState: %w", err)
	}
	return &model.LastState{
		BlockNumber:           out[0].(uint64),
		NextRequestID:         out[1].(uint64),
		NextProposalRequestID: out[2].(uint64),
		NextProposalBlockID:   out[3].(uint64),
		NextFinalBlockID:      out[4].(uint64),
		AssignedValidator:     out[5].(common.Address).Hex(),
		AssignedBlockID:       out[6].(uint64),
	}, nil
}

func (a *EthAdapter) GetRequest(ctx context.Context, requestID uint64) (*model.Request, error) {
	out, err := a.call(ctx, "request", requestID)
	if err != nil {
		return nil, fmt.Errorf("chain: request: %w", err)
	}
	return &model.Request{
		RequestID:     requestID,
		RequestType:   out[0].(uint8),
		Target:        out[1].(common.Address).Hex(),
		BuildVersion:  out[2].(uint64),
		ArtifactRefID: out[3].(string),
		ProtocolID:    out[4].(uint8),
		OwnerVersion:  out[5].(uint64),
		TrackID:       out[6].(uint8),
	}, nil
}

func (a *EthAdapter) NextRequestID(ctx context.Context) (uint64, error) {
	out, err := a.call(ctx, "nextRequestId")
	if err != nil {
		return 0, err
	}
	return out[0].(uint64), nil
}

func (a *EthAdapter) GetBlockInfo(ctx context.Context, blockID uint64, proposer common.Address) (*model.StoreBlockRef, error) {
	out, err := a.call(ctx, "blockInfo", blockID, proposer)
	if err != nil {
		return nil, fmt.Errorf("chain: blockInfo: %w", err)
	}
	hash := out[2].([32]byte)
	result := out[5].([32]byte)
	return &model.StoreBlockRef{
		ID:            blockID,
		RefID:         out[0].(string),
		ProtocolID:    out[1].(uint8),
		BlockHash:     hash[:],
		FromRequestID: out[3].(uint64),
		ToRequestID:   out[4].(uint64),
		Result:        result,
	}, nil
}

func (a *EthAdapter) GetBlockProposers(ctx context.Context, blockID uint64) ([]common.Address, error) {
	out, err := a.call(ctx, "blockProposers", blockID)
	if err != nil {
		return nil, err
	}
	return out[0].([]common.Address), nil
}

func (a *EthAdapter) GetBlockData(ctx context.Context, ref common.Hash) ([]byte, error) {
	tx, _, err := a.client.GetClient().TransactionByHash(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("chain: block data tx lookup: %w", err)
	}
	return tx.Data(), nil
}

// SaveBlockData is not served by the chain adapter: block data is uploaded
// to the object store (GF_NODE_URL), not written on-chain. The proposer
// uploads with uploadBlockData (internal/validator/upload.go) and only calls
// the chain adapter's ProposeBlock with the resulting reference id.
func (a *EthAdapter) SaveBlockData(ctx context.Context, data []byte) (common.Hash, error) {
	return common.Hash{}, fmt.Errorf("chain: SaveBlockData is served by the object store client, not the chain adapter")
}

func (a *EthAdapter) ProposeBlock(ctx context.Context, ref *model.StoreBlockRef) error {
	var hash [32]byte
	copy(hash[:], ref.BlockHash)
	return a.send(ctx, "proposeBlock", ref.ID, ref.RefID, ref.ProtocolID, hash, ref.FromRequestID, ref.ToRequestID, ref.Result)
}

func (a *EthAdapter) Vote(ctx context.Context, blockID uint64, validator common.Address, unavailableMask [16]byte) error {
	return a.send(ctx, "vote", blockID, validator, unavailableMask)
}

func (a *EthAdapter) Finalize(ctx context.Context, blockID uint64) error {
	return a.send(ctx, "finalize", blockID)
}

func (a *EthAdapter) BlockState(ctx context.Context, blockID uint64, validator common.Address) (model.BlockState, error) {
	out, err := a.call(ctx, "blockState", blockID, validator)
	if err != nil {
		return model.BlockStateNone, err
	}
	return model.BlockState(out[0].(uint8)), nil
}

func (a *EthAdapter) NextBlockIDToFinalize(ctx context.Context) (uint64, error) {
	out, err := a.call(ctx, "nextBlockIdToFinalize")
	if err != nil {
		return 0, err
	}
	return out[0].(uint64), nil
}

func (a *EthAdapter) IsFinalizable(ctx context.Context, blockID uint64) (bool, error) {
	out, err := a.call(ctx, "isFinalizable", blockID)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (a *EthAdapter) AssignValidator(ctx context.Context, blockID uint64) error {
	return a.send(ctx, "assignValidator", blockID)
}

func (a *EthAdapter) UnassignValidator(ctx context.Context, blockID uint64) error {
	return a.send(ctx, "unassignValidator", blockID)
}

func (a *EthAdapter) RegisterValidator(ctx context.Context) error {
	return a.send(ctx, "registerValidator")
}

func (a *EthAdapter) UnregisterValidator(ctx context.Context) error {
	return a.send(ctx, "unregisterValidator")
}

func (a *EthAdapter) IsRegistered(ctx context.Context, validator common.Address) (bool, error) {
	out, err := a.call(ctx, "isRegistered", validator)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (a *EthAdapter) NextAssignBlockID(ctx context.Context) (uint64, error) {
	out, err := a.call(ctx, "nextAssignBlockId")
	if err != nil {
		return 0, err
	}
	return out[0].(uint64), nil
}

func (a *EthAdapter) NextBlockIDFor(ctx context.Context, validator common.Address) (uint64, error) {
	out, err := a.call(ctx, "nextBlockIdFor", validator)
	if err != nil {
		return 0, err
	}
	return out[0].(uint64), nil
}

func (a *EthAdapter) ValidatorAssignStatus(ctx context.Context, validator common.Address, version uint64) (model.ValidatorAssignStatus, error) {
	out, err := a.call(ctx, "validatorAssignStatus", validator, version)
	if err != nil {
		return 0, err
	}
	return model.ValidatorAssignStatus(out[0].(uint8)), nil
}

func (a *EthAdapter) MinAvailableVersion(ctx context.Context) (uint64, error) {
	out, err := a.call(ctx, "minAvailableVersion")
	if err != nil {
		return 0, err
	}
	return out[0].(uint64), nil
}

func (a *EthAdapter) RecommendedStakeAmount(ctx context.Context) (*big.Int, error) {
	out, err := a.call(ctx, "recommendedStakeAmount")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (a *EthAdapter) TotalBalance(ctx context.Context, validator common.Address) (*big.Int, error) {
	out, err := a.call(ctx, "totalBalance", validator)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (a *EthAdapter) TopUp(ctx context.Context, amount *big.Int) error {
	return a.send(ctx, "topUp", amount)
}

func (a *EthAdapter) GetArtifact(ctx context.Context, app common.Address, buildVersion uint64) (string, uint8, string, error) {
	out, err := a.call(ctx, "getArtifact", app, buildVersion)
	if err != nil {
		return "", 0, "", err
	}
	return out[0].(string), out[1].(uint8), out[2].(string), nil
}

func (a *EthAdapter) GetOwnerData(ctx context.Context, app common.Address, ownerVersion uint64) ([][]byte, [][]byte, error) {
	out, err := a.call(ctx, "getOwnerData", app, ownerVersion)
	if err != nil {
		return nil, nil, err
	}
	return out[0].([][]byte), out[1].([][]byte), nil
}

func (a *EthAdapter) PollLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topics []common.Hash) ([]Log, error) {
	filter := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{topics},
	}
	logs, err := a.client.GetClient().FilterLogs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("chain: filter logs: %w", err)
	}
	out := make([]Log, 0, len(logs))
	for _, l := range logs {
		out = append(out, Log{Topics: l.Topics, Data: l.Data, BlockNumber: l.BlockNumber})
	}
	return out, nil
}

func (a *EthAdapter) CurrentBlockNumber(ctx context.Context) (uint64, error) {
	return a.client.GetClient().BlockNumber(ctx)
}

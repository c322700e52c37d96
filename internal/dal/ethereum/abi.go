package ethereum

// Contract fragments used by the service. Only the functions and events the
// projector touches are declared; the deployed contracts carry more.

const marketplaceABI = `[
	{"type":"event","name":"Purchased","anonymous":false,"inputs":[
		{"name":"listingId","type":"uint256","indexed":true},
		{"name":"escrowId","type":"uint256","indexed":true},
		{"name":"buyer","type":"address","indexed":true},
		{"name":"tokenId","type":"uint256","indexed":false},
		{"name":"quantity","type":"uint256","indexed":false}]},
	{"type":"event","name":"ListingCreated","anonymous":false,"inputs":[
		{"name":"listingId","type":"uint256","indexed":true},
		{"name":"seller","type":"address","indexed":true},
		{"name":"tokenId","type":"uint256","indexed":false},
		{"name":"price","type":"uint256","indexed":false},
		{"name":"stock","type":"uint256","indexed":false}]},
	{"type":"function","name":"getListing","stateMutability":"view","inputs":[
		{"name":"listingId","type":"uint256"}],"outputs":[
		{"name":"seller","type":"address"},
		{"name":"price","type":"uint256"},
		{"name":"active","type":"bool"},
		{"name":"tokenId","type":"uint256"},
		{"name":"uri","type":"string"},
		{"name":"stock","type":"uint256"}]}
]`

const escrowABI = `[
	{"type":"function","name":"getEscrow","stateMutability":"view","inputs":[
		{"name":"escrowId","type":"uint256"}],"outputs":[
		{"name":"buyer","type":"address"},
		{"name":"seller","type":"address"},
		{"name":"tokenId","type":"uint256"},
		{"name":"amount","type":"uint256"},
		{"name":"shipped","type":"bool"},
		{"name":"delivered","type":"bool"},
		{"name":"refunded","type":"bool"},
		{"name":"createdAt","type":"uint256"},
		{"name":"released","type":"bool"}]},
	{"type":"function","name":"getShipping","stateMutability":"view","inputs":[
		{"name":"escrowId","type":"uint256"}],"outputs":[
		{"name":"logistics","type":"address"},
		{"name":"assignedAt","type":"uint256"},
		{"name":"status","type":"uint8"}]},
	{"type":"function","name":"confirmReceived","stateMutability":"nonpayable","inputs":[
		{"name":"escrowId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"markShipped","stateMutability":"nonpayable","inputs":[
		{"name":"escrowId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"logisticsMarkOnTheWay","stateMutability":"nonpayable","inputs":[
		{"name":"escrowId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"logisticsMarkArrived","stateMutability":"nonpayable","inputs":[
		{"name":"escrowId","type":"uint256"}],"outputs":[]}
]`

const batchNFTABI = `[
	{"type":"function","name":"tokenURI","stateMutability":"view","inputs":[
		{"name":"tokenId","type":"uint256"}],"outputs":[
		{"name":"uri","type":"string"}]},
	{"type":"function","name":"getStatus","stateMutability":"view","inputs":[
		{"name":"tokenId","type":"uint256"}],"outputs":[
		{"name":"status","type":"uint8"}]},
	{"type":"function","name":"updateBatchStatus","stateMutability":"nonpayable","inputs":[
		{"name":"tokenId","type":"uint256"},
		{"name":"status","type":"uint8"}],"outputs":[]}
]`

const userProfileABI = `[
	{"type":"function","name":"getUser","stateMutability":"view","inputs":[
		{"name":"account","type":"address"}],"outputs":[
		{"name":"role","type":"uint8"},
		{"name":"username","type":"string"},
		{"name":"registered","type":"bool"}]}
]`

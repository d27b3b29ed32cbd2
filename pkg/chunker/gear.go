// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

package chunker

// gear is the fixed byte-to-hash substitution table driving the rolling
// hash. The values are arbitrary but must never change: chunk boundaries,
// and therefore dedup, depend on them.
var gear = [256]uint64{
	0xdaeb8ebd244a330c, 0x685bd8519d0023db, 0x959ef8713231c2ca, 0xd1ea2fa4dd9af44c,
	0xa402cba46b82bddd, 0x4f7580cd7b17a39e, 0xc8b045b99d6fb286, 0xceca0ca0c351e0a7,
	0x38987f53584df3c8, 0xbb74476ee0b6e30f, 0x9474c83868219521, 0xa309f5fba2117b34,
	0xf901131499f29aad, 0x6568525f65be34ae, 0xe61c980e7426b628, 0xf330a10b9efe9904,
	0x39381640553d574d, 0x0e6c783bd0d3aac1, 0x992877185800058a, 0xe2b445a3cb88bb30,
	0x42381838bf9d61af, 0x475b2af9c112b40f, 0x9d73761a2479742f, 0xa5869770cc27fdba,
	0x0ce9fcba3e066d3a, 0x40254dfc5f952dda, 0xbe90976fa0b88c66, 0xc764b0449a0fcae9,
	0x0d50e066aa379226, 0x1c89878831d2174b, 0x5192725a6354374e, 0xccd9e6665a015063,
	0xc3e6acee47500cf7, 0x3ccbcd51ad9bec8b, 0xeaa54832abc0d042, 0x1b447ae964c1c89a,
	0x0ac1595ac5c3c0b6, 0x3be57c826f738d74, 0xb2285aacd34440ff, 0xd379bb36d3f73e92,
	0x21bca2c338ec4530, 0x81c189f6fa0b9fbc, 0xdc931e17350c1918, 0xd73f0b44720f86bf,
	0x02265866d923dd6b, 0x4304b6980c596849, 0x930c5483d2e3d818, 0x7508bb12d38ae9a8,
	0x483b9e4a3553d717, 0x91042da51a43f6a6, 0xcd388e7c56f288bf, 0x657db3a23fb1f544,
	0xc37f8cba1bb658ff, 0x3f80e82e94985dcd, 0x50024265fe7ebb2f, 0x58159f4fdc1d8bd5,
	0xa8ee121047b5ee36, 0x5aad8d0f2198d2c5, 0x0fec8fcd73f64b4d, 0xbd2f206f339b8ff7,
	0x4fbcf455e30e7d5c, 0x7afc1109efe0b1d8, 0x34849218aa1bc1d2, 0xe05a2af0326a51aa,
	0xb8031a57a91ad512, 0xf7f55da8f50a5343, 0xf67a6e8c8421b13f, 0x6483f2a7f3d0ffec,
	0x06fbe1c1a9bdaa56, 0xe6c83895a9b2b597, 0x297d4a92f1b5ddd6, 0xa5ad1ae892a2e0fd,
	0x70378245866ab36d, 0xd8570898eeb3162c, 0xa38b7ca71b8b7497, 0xa8f84ad0345be4ac,
	0x3cbf878918da15e5, 0x32666cdf5fec35da, 0x1a7e5607cb4060a6, 0x2564cacc359a9af7,
	0x44830bd8f0a0f070, 0x5e10be8057009c16, 0xd43d3308e8c478bf, 0x89b9ebf0cb6988c5,
	0xb162e14bde10f91e, 0x066d2240225ea8f8, 0x34c981a521a40679, 0x5e62ea28843efa3f,
	0x4ab821f3d99b0602, 0x185876d84b1a3f02, 0x3ff870589e0c737e, 0xe4b6325442d17832,
	0x83f5daddc07c3f0c, 0x21b413aee612619e, 0x52f1ea9a03e41ccd, 0x8fd94855822b982b,
	0x928022824b5eedaa, 0xf6732c9446496f2e, 0x81bbe422cd847349, 0x9088e2ec86bc7fd6,
	0x93a935fa56ba1c5f, 0x79b9a33f54417134, 0x89d9664ecca98ea6, 0xea6c8b82675a008d,
	0xa88b2259755ac015, 0xf0459defec2456cc, 0x6f6d0dc2a3b5d1c6, 0xd6d9c4b5eddb5474,
	0x38d4631445250313, 0xc6ed3137b39e9862, 0x860cd4b3c9fd4247, 0x9a0eb79035416ff3,
	0x388008a942804c7e, 0x29e9133a40e25af2, 0xc5f1742fd3e20074, 0xa36829d9b12cf9e1,
	0xf8f5fee8dd9834db, 0xb0117af959788f60, 0xd1eb51df61a9bbda, 0xc3110319dc077bc9,
	0x5838b4e6615301ca, 0xb600c09a0dc61203, 0xa0048520fddc94b8, 0x075ec507835f3178,
	0x9191a970f8a6528d, 0x50a059a9a0173830, 0x40130c670933a072, 0xd50591572c101563,
	0xffc0457bb7647de6, 0xb2753786d818934c, 0xb4addd011d1fc8d5, 0xc00e3068cf1b7ad1,
	0x1cf4de9ae42815e4, 0x3d148b101d1a41fd, 0x0b87334c4f4154f7, 0x274f6f5aa2a3f244,
	0xf964a3a5f9ef8efb, 0x80442e46d1d0bc5b, 0xb5405444c921bea0, 0x94a9e7398c47c2b4,
	0x9137ddd5898ab67a, 0xd88b9a2c8b6b355a, 0xcf02344b3119bff7, 0xf464fa8e415e7b61,
	0x9e962460d77c94fc, 0x30c443571f5fb2e9, 0x6123efa561e9c370, 0x56a314ebcca7a4eb,
	0x5e8b3b962635131b, 0x7465b7c987a738fc, 0x6fceb68a5247dbf7, 0x512e181264c78e2f,
	0x17b0ddf52cec7b42, 0x7185606e6365f3a6, 0xe3419536daf252e5, 0xd6fe3215867f8d71,
	0xbb50da01193a3a3b, 0xf5e3c1e56a1d352a, 0x9b4c08be3a4dae22, 0xf62f1e58ea517b4b,
	0x391e2ddd78073598, 0x9ffeaae3ebb016a4, 0x552a71489cc45822, 0xf134bfe06244c61d,
	0x6fe7b9f548e38d8b, 0x6e2f654a84559b4d, 0xdbf649c2b001a9ac, 0xc1d52bd8774ff7d0,
	0xcc72229638934f6e, 0xb898bf3668dadb6f, 0xfe1387bfccfbb924, 0x8975c8d03d081421,
	0x02b4302aca1e50ce, 0x1ca2cd0dc899d0e2, 0x3b9ec4e1edbbd3f4, 0x3ccfb8040c12de20,
	0x271ac7fbb361cb04, 0xaac96673241a8fdb, 0xad44aae74ffe6367, 0x4db28cdc208b12f9,
	0x09de29afbba64998, 0x6f83b226d5ad40cb, 0x67794a52a1557d9f, 0xecb75608f1caadf8,
	0xb860dd9731c80904, 0xb46d859406f8895e, 0xec257a7d529f56ed, 0x7187acf5b729d1c4,
	0x4c8d41e544ba9ae4, 0x77f1884a101c3295, 0x39b873922047e1cb, 0xafe2eda84ad55956,
	0xcf933ba3adae3ef2, 0x507ca6308e4061de, 0xee637ff0d4efd9a3, 0xa0947c07c10ace92,
	0x8767cf6ab6313531, 0xb1000ea9c7a85b78, 0x7124649fbe312367, 0x34078e9c4e5acd6d,
	0xfbaa0b73a112fd35, 0xc16d341fe60b4c6c, 0xbc360d67c05de8a2, 0xad7189bf012b76d3,
	0x457380482331d42e, 0x36aed547994cf6e6, 0x49e92033d31198ce, 0x1aa9f06d4fc1c5e2,
	0x5bdbce793a6a290b, 0xf63c5f3bc2b01d2e, 0xe1954ad3f7b43a0a, 0xbadb13ee86a957a6,
	0x6aeefabdb8419dae, 0x0109b7cc98c3a028, 0x4aa04515a4dfcafd, 0xf8886c180a655dec,
	0x9a68f670370e7f6d, 0xa9ce17cebba58544, 0x22bd14bbcb2d45e2, 0x4ea337d0fe4e6396,
	0xa72a7dd42a1e2a52, 0xee95d0154c6ec863, 0xfcbdcf15d686fda6, 0xcdde808bb7332d60,
	0x87b37ea789d4a476, 0x7b916dd970d9200f, 0x6c6eb263df472243, 0xef21da6ce04216d2,
	0xc3f59d71fae9da84, 0xae2d396d1fdc4f02, 0xf5f63e3f2353ee76, 0x647d4156c10ac5a4,
	0x032d4578dba312de, 0x7b61c84c3c264548, 0xf89ec51442ab2eda, 0x1a21f98905216e35,
	0x3071dd2b6f5b9114, 0x5fbc01a82b7a9815, 0xb3bc709f71ef83a8, 0x74d605076e2c74a5,
	0x23148df8a4e5e749, 0x2e4a6059fa95b7cd, 0xfaf778b882e6b09d, 0x99dfb91b97792f8c,
	0x10f743980c830116, 0x154e73572b7e79e4, 0x971e6ab2dd88161a, 0x0f23c87517408afe,
	0x47e091258ddff9f7, 0xd0a542ec51c81ae9, 0xdc311b9c7129a920, 0x12732cbfb74b0b35,
	0xc9ab25b24b450b17, 0x0021ab9602145b92, 0xf08618b551c66c1f, 0xcea883a14eccfc56,
}

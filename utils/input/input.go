package input

import (
	"context"
	"os"

	"git.fiblab.net/general/common/v2/cache"
	"git.fiblab.net/general/common/v2/mongoutil"
	"git.fiblab.net/general/common/v2/protoutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/aimsim/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/protobuf/proto"
)

// Input 输入数据
type Input struct {
	Map *Map
}

// Init 加载地图
// 功能：按配置从protobuf文件、MongoDB（带本地缓存）读取地图，均未配置时生成内置地图
// 参数：c-配置，layout-已填充默认值的内置地图参数，cacheDir-缓存目录
// 返回：输入数据，加载失败时panic
func Init(c config.Config, layout config.Layout, cacheDir string) *Input {
	res := &Input{}
	switch {
	case c.Input.Map.File != "":
		var m mapv2.Map
		if err := protoutil.UnmarshalFromFile(&m, c.Input.Map.File); err != nil {
			log.Panicf("failed to load map from file: %v", err)
		}
		res.Map = FromPb(&m)
	case !c.Input.Map.IsEmpty():
		if !preCheckCache(cacheDir) {
			cacheDir = ""
		}
		var client *mongo.Client
		if c.Input.URI != "" {
			client = mongoutil.NewClient(c.Input.URI)
			defer client.Disconnect(context.Background())
		}
		res.Map = FromPb(mustLoad[mapv2.Map](client, c.Input.Map, cacheDir, nil, nil))
	default:
		res.Map = BuildLayout(layout)
	}
	if len(res.Map.Junctions) == 0 {
		log.Warn("map has no junction, no vehicle will be admitted anywhere")
	}
	return res
}

// mustLoad 从MongoDB或缓存中加载protobuf数据，失败时panic
func mustLoad[T any, PT interface {
	proto.Message
	*T
}](
	client *mongo.Client,
	inputPath config.InputPath,
	cacheDir string,
	classNameMapper func(string) string,
	handler func(className string, pb any, rawBson bson.Raw) error,
	opts ...*options.FindOptions,
) (res PT) {
	var downloadFunc func() PT
	var err error
	if !inputPath.OnlyCache {
		if client == nil {
			log.Panicf("input.uri is required to download %s.%s", inputPath.DB, inputPath.Col)
		}
		coll := mongoutil.GetMongoColl(client, inputPath)
		downloadFunc = func() PT {
			pb, errs := mongoutil.DownloadPbFromMongo[T, PT](context.Background(), coll, classNameMapper, handler, opts...)
			if len(errs) > 0 {
				for _, err := range errs {
					log.Errorf("failed to download: %v", err)
				}
				log.Panicln("failed to download")
			}
			return pb
		}
	}
	log.Infof("start fetching from %s.%s", inputPath.DB, inputPath.Col)
	res, err = cache.LoadWithCache(cacheDir, inputPath, downloadFunc)
	if err != nil {
		log.Panicf("failed to load with cache: %v", err)
	}
	log.Infof("finish fetching from %s.%s", inputPath.DB, inputPath.Col)
	return
}

// preCheckCache 缓存目录存在且为文件夹时启用缓存
func preCheckCache(cacheDir string) bool {
	if cacheDir == "" {
		log.Info("disable input cache")
		return false
	}
	if stat, err := os.Stat(cacheDir); err == nil && stat.IsDir() {
		log.Infof("enable input cache at %s", cacheDir)
		return true
	}
	log.Errorf("disable input cache because invalid dir %s (not exist or file)", cacheDir)
	return false
}
